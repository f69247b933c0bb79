// Package stream frames a long-lived HTTP response as a sequence of
// discrete, independently-parseable JSON records, one per line. Each
// record carries a type discriminator; a terminal complete or error
// record is always last and nothing follows it.
package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"sync"
)

const ContentType = "application/x-ndjson"

type EventType string

const (
	EventStatus       EventType = "status"
	EventMetadata     EventType = "metadata"
	EventSummaryChunk EventType = "summary_chunk"
	EventVisionChunk  EventType = "vision_chunk"
	EventMappingChunk EventType = "mapping_chunk"
	EventChatChunk    EventType = "chat_chunk"
	EventReadyForChat EventType = "ready_for_chat"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
)

// Event is one wire record. Only the fields relevant to the Type are set;
// the rest are omitted from the encoded record.
type Event struct {
	Type       EventType `json:"type"`
	Message    string    `json:"message,omitempty"`
	Title      string    `json:"title,omitempty"`
	Thumbnail  string    `json:"thumbnail,omitempty"`
	Content    string    `json:"content,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	SummaryID  uint      `json:"summary_id,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// Writer emits events to the underlying response writer, flushing after
// every record so tokens reach the client as they are produced. After a
// terminal event the writer is closed and further emits are dropped.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	enc     *json.Encoder
	closed  bool
}

func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w, enc: json.NewEncoder(w)}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// Emit writes one event record. Exactly one terminal event goes out per
// writer; anything emitted after it is silently discarded.
func (sw *Writer) Emit(e Event) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return nil
	}
	if e.Terminal() {
		sw.closed = true
	}
	// json.Encoder appends the record delimiter (newline) itself.
	if err := sw.enc.Encode(e); err != nil {
		return err
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}

// Closed reports whether a terminal event has been emitted.
func (sw *Writer) Closed() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.closed
}

// Reader decodes an event stream record by record. Records may arrive
// split across network reads, so lines are reassembled on the delimiter
// before decoding; records that fail to decode are skipped, not fatal.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next decodable event, or io.EOF when the stream ends.
func (sr *Reader) Next() (Event, error) {
	for {
		line, err := sr.r.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			return Event{}, err
		}

		var e Event
		if jsonErr := json.Unmarshal(line, &e); jsonErr == nil && e.Type != "" {
			return e, nil
		}
		// Undecodable record: discard and keep reading. A partial final
		// line hits this path too and terminates on the read error.
		if err != nil {
			return Event{}, err
		}
	}
}
