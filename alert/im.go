package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"golang.org/x/time/rate"

	"github.com/netresearch/datamon/core"
)

// IMConfig configures the IM gateway transport.
type IMConfig struct {
	GatewayURL  string
	AccessToken string
	// SendRate limits outgoing gateway calls per second. Zero keeps the
	// default.
	SendRate float64 `default:"5"`
}

// IMSender delivers text messages through the HTTP gateway. Messages above
// the gateway's payload limit are chunked at line boundaries; on the first
// failure for a recipient the remaining chunks for that recipient are
// dropped.
type IMSender struct {
	config  IMConfig
	logger  core.Logger
	client  *http.Client
	limiter *rate.Limiter
}

// NewIMSender returns nil when no gateway is configured.
func NewIMSender(c IMConfig, logger core.Logger) *IMSender {
	if c.GatewayURL == "" {
		return nil
	}
	if err := defaults.Set(&c); err != nil {
		panic(err)
	}
	return &IMSender{
		config:  c,
		logger:  logger,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(c.SendRate), 1),
	}
}

// Send delivers msg to every recipient, chunk by chunk.
func (s *IMSender) Send(recipients []string, msg string) {
	chunks := SplitMessage(msg, MaxChunkSize)
	for _, user := range recipients {
		if err := s.sendChunks(user, chunks); err != nil {
			s.logger.Errorf("failed sending IM message to user %q: %v", user, err)
			continue
		}
		s.logger.Noticef("succeeded sending IM message to user %q", user)
	}
}

func (s *IMSender) sendChunks(user string, chunks []string) error {
	for _, chunk := range chunks {
		if err := s.post(user, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *IMSender) post(user, content string) error {
	if err := s.limiter.Wait(context.Background()); err != nil {
		return err
	}

	form := url.Values{
		"access_token": {s.config.AccessToken},
		"msg_type":     {"text"},
		"to":           {user},
		"content":      {content},
	}
	resp, err := s.client.PostForm(s.config.GatewayURL, form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	if !strings.EqualFold(body.Result, "ok") {
		return fmt.Errorf("gateway refused message: result=%q", body.Result)
	}
	return nil
}
