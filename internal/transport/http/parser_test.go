package http

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParserSingleMessage(t *testing.T) {
	p := NewParser()
	msg := "GET /accessories HTTP/1.1\r\nHost: x\r\n\r\n"
	out := p.Feed([]byte(msg))
	require.Len(t, out, 1)
	require.Equal(t, msg, string(out[0]))
}

func TestParserSplitAcrossFeeds(t *testing.T) {
	p := NewParser()
	full := "POST /pair-setup HTTP/1.1\r\nContent-Length: 4\r\n\r\nabcd"
	require.Empty(t, p.Feed([]byte(full[:10])))
	require.Empty(t, p.Feed([]byte(full[10:30])))
	out := p.Feed([]byte(full[30:]))
	require.Len(t, out, 1)
	require.Equal(t, full, string(out[0]))
}

func TestParserTwoMessagesInOneChunk(t *testing.T) {
	p := NewParser()
	m1 := "GET /accessories HTTP/1.1\r\n\r\n"
	m2 := "GET /characteristics HTTP/1.1\r\n\r\n"
	out := p.Feed([]byte(m1 + m2))
	require.Len(t, out, 2)
	require.Equal(t, m1, string(out[0]))
	require.Equal(t, m2, string(out[1]))
}

func TestParseContentLengthCaseInsensitive(t *testing.T) {
	header := []byte("POST / HTTP/1.1\r\ncontent-length: 12\r\n\r\n")
	require.Equal(t, 12, parseContentLength(header))
}
