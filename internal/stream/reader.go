// ABOUTME: Pull-based reader over a "data: <json>" event stream body
// ABOUTME: Skips malformed chunks with a warning so one bad line never aborts a stream

package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"log/slog"
)

const (
	dataPrefix  = "data:"
	doneMarker  = "[DONE]"
	maxLineSize = 1024 * 1024
)

// Reader yields Events from an SSE-style body, one per Next call.
type Reader struct {
	br      *bufio.Reader
	line    []byte
	logger  *slog.Logger
	done    bool
	skipped int
}

// NewReader wraps body. Pass nil logger for default.
func NewReader(body io.Reader, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		br:     bufio.NewReaderSize(body, 64*1024),
		logger: logger.With("component", "stream"),
	}
}

// Next returns the next event. It returns io.EOF after the [DONE] marker or
// when the body ends, and any other error from the underlying reader as is.
func (r *Reader) Next() (Event, error) {
	if r.done {
		return nil, io.EOF
	}

	for {
		raw, tooLong, err := r.readLine()
		if err != nil {
			r.done = true
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}
		if tooLong {
			r.skipped++
			r.logger.Warn("skipping oversized chunk",
				"limit", maxLineSize,
				"skipped", r.skipped)
			continue
		}

		line := bytes.TrimSpace(raw)

		// Blank separators, comments and event: lines carry nothing for us
		if !bytes.HasPrefix(line, []byte(dataPrefix)) {
			continue
		}

		payload := bytes.TrimSpace(line[len(dataPrefix):])
		if len(payload) == 0 {
			continue
		}
		if string(payload) == doneMarker {
			r.done = true
			return nil, io.EOF
		}

		ev, err := Decode(payload)
		if err != nil {
			r.skipped++
			r.logger.Warn("skipping malformed chunk",
				"error", err,
				"skipped", r.skipped)
			continue
		}
		return ev, nil
	}
}

// readLine returns the next line, valid until the following call. A line
// longer than maxLineSize is consumed in full and reported as tooLong with no
// content. A final line without a newline is returned before io.EOF.
func (r *Reader) readLine() (line []byte, tooLong bool, err error) {
	r.line = r.line[:0]
	for {
		frag, err := r.br.ReadSlice('\n')
		if !tooLong {
			if len(r.line)+len(frag) > maxLineSize {
				tooLong = true
				r.line = r.line[:0]
			} else {
				r.line = append(r.line, frag...)
			}
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if tooLong || len(r.line) > 0 {
				return r.line, tooLong, nil
			}
			return nil, false, io.EOF
		case err != nil:
			return nil, false, err
		}
		return r.line, tooLong, nil
	}
}

// Skipped returns how many malformed or oversized chunks have been dropped so far.
func (r *Reader) Skipped() int {
	return r.skipped
}
