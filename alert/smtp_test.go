package alert

import (
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sinkBackend accepts every message and records the envelope and body.
type sinkBackend struct {
	mu       sync.Mutex
	from     string
	rcpts    []string
	messages []string
}

func (b *sinkBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &sinkSession{backend: b}, nil
}

type sinkSession struct {
	backend *sinkBackend
}

func (s *sinkSession) Mail(from string, _ *smtp.MailOptions) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.from = from
	return nil
}

func (s *sinkSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.rcpts = append(s.backend.rcpts, to)
	return nil
}

func (s *sinkSession) Data(r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.messages = append(s.backend.messages, string(body))
	return nil
}

func (s *sinkSession) Reset()        {}
func (s *sinkSession) Logout() error { return nil }

// startSink runs a plaintext SMTP server on a random local port.
func startSink(t *testing.T) (*sinkBackend, int) {
	t.Helper()
	backend := &sinkBackend{}
	server := smtp.NewServer(backend)
	server.Domain = "localhost"

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = server.Close() })

	return backend, ln.Addr().(*net.TCPAddr).Port
}

func TestMailSenderDeliversOverSMTP(t *testing.T) {
	backend, port := startSink(t)

	logger := &testLogger{}
	sender := NewMailSender(MailConfig{
		SMTPHost:      "127.0.0.1",
		SMTPPort:      port,
		EmailFrom:     "monitor@example.com",
		EmailSubject:  "message from data monitor",
		DefaultDomain: "example.com",
	}, logger)
	require.NotNil(t, sender)

	sender.Send([]string{"alice", "bob@ops.example.com"}, "job [orders_daily] alarm")

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, "monitor@example.com", backend.from)
	assert.Equal(t, []string{"alice@example.com", "bob@ops.example.com"}, backend.rcpts)
	require.Len(t, backend.messages, 1)
	assert.Contains(t, backend.messages[0], "Subject: message from data monitor")
	assert.Contains(t, backend.messages[0], "job [orders_daily] alarm")
	assert.Contains(t, logger.joined(), "succeeded sending email")
}

func TestMailSenderReportsRefusedRelay(t *testing.T) {
	// grab a free port and close it again so the dial is refused
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedPort := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	logger := &testLogger{}
	sender := NewMailSender(MailConfig{
		SMTPHost:  "127.0.0.1",
		SMTPPort:  closedPort,
		EmailFrom: "monitor@example.com",
	}, logger)

	sender.Send([]string{"alice@example.com"}, "body")
	assert.True(t, strings.Contains(logger.joined(), "failed sending email"))
}
