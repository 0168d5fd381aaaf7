// Package http implements the IP transport: an incremental HTTP/1.1
// message-boundary parser feeding net/http + httprouter, wired to the
// secure-session AEAD framing and the pairing engines.
package http

import (
	"bytes"
	"strconv"
	"strings"
)

type boundaryState int

const (
	stateRequestLine boundaryState = iota
	stateHeaders
	stateBody
)

// Parser detects complete HTTP/1.1 request message boundaries within an
// arbitrarily-chunked byte stream — the {RequestLine, Headers, Body}
// incremental parser spec.md §4.6 calls for. It only looks far enough to
// find Content-Length and the message end; http.ReadRequest interprets
// the message itself once a full one is buffered.
type Parser struct {
	state         boundaryState
	buf           []byte
	headerEnd     int
	contentLength int
}

// NewParser returns a parser ready for a fresh connection.
func NewParser() *Parser {
	return &Parser{state: stateRequestLine}
}

// Feed appends newly-received bytes and returns every request message now
// fully buffered, each as its raw `method line + headers + body` bytes.
func (p *Parser) Feed(data []byte) [][]byte {
	p.buf = append(p.buf, data...)
	var out [][]byte
	for {
		switch p.state {
		case stateRequestLine:
			if !bytes.Contains(p.buf, []byte("\r\n")) {
				return out
			}
			p.state = stateHeaders
		case stateHeaders:
			idx := bytes.Index(p.buf, []byte("\r\n\r\n"))
			if idx < 0 {
				return out
			}
			p.headerEnd = idx + 4
			p.contentLength = parseContentLength(p.buf[:p.headerEnd])
			p.state = stateBody
		case stateBody:
			total := p.headerEnd + p.contentLength
			if len(p.buf) < total {
				return out
			}
			msg := make([]byte, total)
			copy(msg, p.buf[:total])
			out = append(out, msg)
			p.buf = p.buf[total:]
			p.state = stateRequestLine
			p.headerEnd = 0
			p.contentLength = 0
		}
	}
}

func parseContentLength(header []byte) int {
	for _, line := range bytes.Split(header, []byte("\r\n")) {
		idx := bytes.IndexByte(line, ':')
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(string(line[:idx]))
		if strings.EqualFold(key, "Content-Length") {
			n, _ := strconv.Atoi(strings.TrimSpace(string(line[idx+1:])))
			return n
		}
	}
	return 0
}
