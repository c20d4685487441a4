// ABOUTME: Server side of the event stream: writes "data: <json>" records
// ABOUTME: Used by the fake agent backend and by tests that need a real SSE body

package stream

import (
	"fmt"
	"io"
	"net/http"
)

// Writer emits events as SSE data records, flushing after each one when the
// underlying writer supports it.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter wraps w. If w is an http.ResponseWriter the SSE headers are set.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if rw, ok := w.(http.ResponseWriter); ok {
		rw.Header().Set("Content-Type", "text/event-stream")
		rw.Header().Set("Cache-Control", "no-cache")
		rw.Header().Set("Connection", "keep-alive")
	}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// Write sends one event.
func (sw *Writer) Write(ev Event) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	return sw.writeRaw(data)
}

// WriteRaw sends an arbitrary payload as a data record, malformed or not.
func (sw *Writer) WriteRaw(payload string) error {
	return sw.writeRaw([]byte(payload))
}

// Close sends the [DONE] terminator.
func (sw *Writer) Close() error {
	return sw.writeRaw([]byte(doneMarker))
}

func (sw *Writer) writeRaw(data []byte) error {
	if _, err := fmt.Fprintf(sw.w, "%s %s\n\n", dataPrefix, data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}
