// Package sse encodes and decodes text/event-stream frames.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const ContentType = "text/event-stream"

// Event is one dispatched server-sent event.
type Event struct {
	ID   string
	Name string
	Data []byte
}

// Decode unmarshals the event's data as JSON.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Writer frames events onto a buffered stream and flushes after each one.
type Writer struct {
	w *bufio.Writer
}

func NewWriter(w *bufio.Writer) *Writer {
	return &Writer{w: w}
}

// Send writes a named event whose data is v encoded as JSON.
func (w *Writer) Send(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sse encode %s: %w", name, err)
	}
	return w.SendRaw(Event{Name: name, Data: data})
}

func (w *Writer) SendRaw(e Event) error {
	if e.ID != "" {
		fmt.Fprintf(w.w, "id: %s\n", e.ID)
	}
	if e.Name != "" {
		fmt.Fprintf(w.w, "event: %s\n", e.Name)
	}
	for _, line := range bytes.Split(e.Data, []byte("\n")) {
		fmt.Fprintf(w.w, "data: %s\n", line)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// Comment writes a keep-alive comment line.
func (w *Writer) Comment(text string) error {
	fmt.Fprintf(w.w, ": %s\n\n", text)
	return w.w.Flush()
}

// maxLine bounds a single stream line.
const maxLine = 1 << 20

var ErrLineTooLong = errors.New("sse line too long")

// Reader parses events from a stream.
type Reader struct {
	s *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), maxLine)
	return &Reader{s: s}
}

// Next returns the next event. It returns io.EOF when the stream ends
// cleanly between events and io.ErrUnexpectedEOF when it ends mid-event.
func (r *Reader) Next() (Event, error) {
	var (
		ev      Event
		data    [][]byte
		pending bool
	)
	for r.s.Scan() {
		line := r.s.Text()
		if line == "" {
			if !pending {
				continue
			}
			ev.Data = bytes.Join(data, []byte("\n"))
			if ev.Name == "" {
				ev.Name = "message"
			}
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
			pending = true
		case "data":
			data = append(data, []byte(value))
			pending = true
		case "id":
			ev.ID = value
			pending = true
		}
	}
	if err := r.s.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return Event{}, ErrLineTooLong
		}
		return Event{}, err
	}
	if pending {
		return Event{}, io.ErrUnexpectedEOF
	}
	return Event{}, io.EOF
}
