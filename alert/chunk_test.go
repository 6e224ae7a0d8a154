package alert

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMessageAtLineBoundaries(t *testing.T) {
	msg := strings.Repeat("x", 1500) + "\n" +
		strings.Repeat("y", 1999) + "\n" +
		strings.Repeat("z", 1499)
	require.Equal(t, 5000, len(msg))

	chunks := SplitMessage(msg, MaxChunkSize)
	require.Len(t, chunks, 3)
	assert.Equal(t, 1501, len(chunks[0]))
	assert.Equal(t, 2000, len(chunks[1]))
	assert.Equal(t, 1499, len(chunks[2]))

	// chunks end after the newline they were cut at
	assert.True(t, strings.HasSuffix(chunks[0], "\n"))
	assert.True(t, strings.HasSuffix(chunks[1], "\n"))

	// joining loses nothing
	assert.Equal(t, msg, strings.Join(chunks, ""))
}

func TestSplitMessageWithoutNewlines(t *testing.T) {
	msg := strings.Repeat("a", 5000)
	chunks := SplitMessage(msg, 2048)
	require.Len(t, chunks, 3)
	assert.Equal(t, 2048, len(chunks[0]))
	assert.Equal(t, 2048, len(chunks[1]))
	assert.Equal(t, 904, len(chunks[2]))
	assert.Equal(t, msg, strings.Join(chunks, ""))
}

func TestSplitMessageShort(t *testing.T) {
	assert.Equal(t, []string{"hello"}, SplitMessage("hello", 2048))
	assert.Nil(t, SplitMessage("", 2048))
}
