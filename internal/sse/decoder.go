// Package sse splits a text/event-stream body into frames and extracts
// their data payloads. It implements only the subset of the event-stream
// format that the AG-UI run endpoint emits: frames separated by a blank
// line, payload carried on "data:" lines.
package sse

import "strings"

const dataPrefix = "data:"

// Decoder accumulates arbitrarily-sized chunks and emits complete frames.
// The zero value is ready to use. A Decoder is not safe for concurrent use.
type Decoder struct {
	buf       string
	pendingCR bool // chunk ended in '\r'; it may be half of a CRLF
}

// Feed appends chunk to the buffer and returns every frame completed by it,
// in order. Line endings are normalized to '\n' before splitting. Empty
// frames are dropped.
func (d *Decoder) Feed(chunk string) []string {
	if chunk == "" {
		return nil
	}
	if d.pendingCR {
		chunk = "\r" + chunk
		d.pendingCR = false
	}
	if strings.HasSuffix(chunk, "\r") {
		chunk = chunk[:len(chunk)-1]
		d.pendingCR = true
	}
	d.buf += normalizeNewlines(chunk)
	return d.drain()
}

// Flush ends the stream. Whatever remains buffered is returned as a final
// frame unless it is empty. The Decoder is reset and may be reused.
func (d *Decoder) Flush() []string {
	if d.pendingCR {
		d.buf += "\n"
		d.pendingCR = false
	}
	frames := d.drain()
	if strings.Trim(d.buf, "\n") != "" {
		frames = append(frames, d.buf)
	}
	d.buf = ""
	return frames
}

// Buffered reports how many bytes are waiting for a frame delimiter.
func (d *Decoder) Buffered() int {
	n := len(d.buf)
	if d.pendingCR {
		n++
	}
	return n
}

func (d *Decoder) drain() []string {
	var frames []string
	for {
		i := strings.Index(d.buf, "\n\n")
		if i < 0 {
			return frames
		}
		frame := d.buf[:i]
		d.buf = d.buf[i+2:]
		if frame != "" {
			frames = append(frames, frame)
		}
	}
}

func normalizeNewlines(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// Payload joins the data lines of a frame with '\n'. The "data:" prefix and
// any whitespace directly after it are stripped; other lines (event:, id:,
// comments) are ignored. It returns false when the frame carries no data.
func Payload(frame string) (string, bool) {
	var lines []string
	for _, line := range strings.Split(frame, "\n") {
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		lines = append(lines, strings.TrimLeft(line[len(dataPrefix):], " \t"))
	}
	if len(lines) == 0 {
		return "", false
	}
	payload := strings.Join(lines, "\n")
	if strings.TrimSpace(payload) == "" {
		return "", false
	}
	return payload, true
}
