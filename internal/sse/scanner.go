package sse

import (
	"errors"
	"io"
)

const defaultReadSize = 4096

// Scanner reads an event stream from r and yields frame payloads one at a
// time. Reads happen only when no decoded payload is pending, so a Scanner
// never gets ahead of its caller by more than one read.
type Scanner struct {
	r       io.Reader
	err     error
	buf     []byte
	pending []string
	payload string
	dec     Decoder
	done    bool
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: r, buf: make([]byte, defaultReadSize)}
}

// Scan advances to the next payload. It returns false at end of stream or
// on a read error; Err distinguishes the two.
func (s *Scanner) Scan() bool {
	for {
		for len(s.pending) > 0 {
			frame := s.pending[0]
			s.pending = s.pending[1:]
			if p, ok := Payload(frame); ok {
				s.payload = p
				return true
			}
		}
		if s.done {
			s.payload = ""
			return false
		}

		n, err := s.r.Read(s.buf)
		if n > 0 {
			s.pending = append(s.pending, s.dec.Feed(string(s.buf[:n]))...)
		}
		if err != nil {
			s.done = true
			if errors.Is(err, io.EOF) {
				s.pending = append(s.pending, s.dec.Flush()...)
			} else {
				s.err = err
			}
		}
	}
}

// Payload returns the payload produced by the last successful Scan.
func (s *Scanner) Payload() string {
	return s.payload
}

// Err returns the first non-EOF read error.
func (s *Scanner) Err() error {
	return s.err
}
