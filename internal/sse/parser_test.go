package sse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedEmitsCompleteEvents(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte("event: message_start\ndata: {\"a\":1}\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "message_start", events[0].EventType)
	assert.Equal(t, `{"a":1}`, events[0].Data)
}

func TestFeedBuffersPartialEventAcrossCalls(t *testing.T) {
	p := NewParser()
	assert.Empty(t, p.Feed([]byte("data: {\"partial\":")))

	events := p.Feed([]byte("true}\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, `{"partial":true}`, events[0].Data)
}

func TestFeedJoinsMultipleDataLines(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte("data: line one\ndata: line two\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "line one\nline two", events[0].Data)
}

func TestFeedIgnoresCommentsAndIDLines(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte(": keepalive\nid: 42\nretry: 5000\ndata: hello\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "hello", events[0].Data)
}

func TestFeedSkipsBlocksWithNoDataLines(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte("event: ping\n\ndata: real\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "real", events[0].Data)
}

func TestCloseFlushesTrailingBlockWithoutBoundary(t *testing.T) {
	p := NewParser()
	assert.Empty(t, p.Feed([]byte("data: trailing")))
	events := p.Close()
	require.Len(t, events, 1)
	assert.Equal(t, "trailing", events[0].Data)
}

func TestParseAllReadsFullStream(t *testing.T) {
	stream := "data: one\n\ndata: two\n\n"
	events, err := ParseAll(strings.NewReader(stream))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "one", events[0].Data)
	assert.Equal(t, "two", events[1].Data)
}

func TestFindBoundaryHandlesCRLF(t *testing.T) {
	idx, width := findBoundary("data: x\r\n\r\nrest")
	assert.Equal(t, 7, idx)
	assert.Equal(t, 4, width)
}
