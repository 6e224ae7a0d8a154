package alert

import "strings"

// MaxChunkSize is the IM gateway's payload limit in bytes.
const MaxChunkSize = 2048

// SplitMessage cuts a message into chunks of at most limit bytes, preferring
// to cut just after the last newline inside the window. Joining the chunks
// reconstructs the message byte for byte.
func SplitMessage(msg string, limit int) []string {
	if msg == "" {
		return nil
	}
	var chunks []string
	for len(msg) > limit {
		cut := limit
		if i := strings.LastIndexByte(msg[:limit], '\n'); i >= 0 {
			cut = i + 1
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return append(chunks, msg)
}
