package stream

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriterPreservesOrderAndDelimitsRecords(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	assert.NoError(t, w.Emit(Event{Type: EventMetadata, Title: "A video", Thumbnail: "http://img"}))
	assert.NoError(t, w.Emit(Event{Type: EventSummaryChunk, Content: "first "}))
	assert.NoError(t, w.Emit(Event{Type: EventSummaryChunk, Content: "second"}))
	assert.NoError(t, w.Emit(Event{Type: EventComplete, SummaryID: 7}))

	r := NewReader(&buf)
	var types []EventType
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		assert.NoError(t, err)
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{EventMetadata, EventSummaryChunk, EventSummaryChunk, EventComplete}, types)
}

func TestWriterDropsEventsAfterTerminal(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	assert.NoError(t, w.Emit(Event{Type: EventError, Message: "boom"}))
	assert.True(t, w.Closed())
	assert.NoError(t, w.Emit(Event{Type: EventSummaryChunk, Content: "late"}))
	assert.NoError(t, w.Emit(Event{Type: EventComplete}))

	r := NewReader(&buf)
	first, err := r.Next()
	assert.NoError(t, err)
	assert.Equal(t, EventError, first.Type)
	assert.Equal(t, "boom", first.Message)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

// chunkReader returns at most n bytes per Read to simulate records split
// across network reads.
type chunkReader struct {
	data []byte
	n    int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := c.n
	if n > len(c.data) {
		n = len(c.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func TestReaderReassemblesSplitRecords(t *testing.T) {
	raw := `{"type":"metadata","title":"T"}` + "\n" +
		`{"type":"chat_chunk","content":"hello world"}` + "\n" +
		`{"type":"complete"}` + "\n"

	r := NewReader(&chunkReader{data: []byte(raw), n: 3})

	e, err := r.Next()
	assert.NoError(t, err)
	assert.Equal(t, EventMetadata, e.Type)
	assert.Equal(t, "T", e.Title)

	e, err = r.Next()
	assert.NoError(t, err)
	assert.Equal(t, "hello world", e.Content)

	e, err = r.Next()
	assert.NoError(t, err)
	assert.Equal(t, EventComplete, e.Type)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderSkipsUndecodableRecords(t *testing.T) {
	raw := `{"type":"status","message":"working"}` + "\n" +
		"not json at all\n" +
		`{"broken":` + "\n" +
		`{"type":"complete"}` + "\n"

	r := NewReader(strings.NewReader(raw))

	e, err := r.Next()
	assert.NoError(t, err)
	assert.Equal(t, EventStatus, e.Type)

	e, err = r.Next()
	assert.NoError(t, err)
	assert.Equal(t, EventComplete, e.Type)
}

func TestReaderToleratesPartialFinalLine(t *testing.T) {
	raw := `{"type":"complete"}` + "\n" + `{"type":"chat_chu`

	r := NewReader(strings.NewReader(raw))

	e, err := r.Next()
	assert.NoError(t, err)
	assert.Equal(t, EventComplete, e.Type)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}
