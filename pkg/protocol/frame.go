package protocol

import "bytes"

// MaxFrameSize bounds a single unterminated line held by a Splitter.
const MaxFrameSize = 1 << 20

// Splitter reassembles newline-terminated frames from arbitrary read chunks.
// A line split across reads is held until its terminator arrives.
type Splitter struct {
	buf []byte
	// Overflow is called when a pending line exceeds MaxFrameSize and is discarded.
	Overflow func(dropped int)
	// skipping is set after an overflow until the next terminator.
	skipping bool
}

// Feed appends chunk and returns every complete line it closes, without the
// terminating "\n" or a trailing "\r". Empty lines are skipped.
// Returned slices are only valid until the next call to Feed.
func (s *Splitter) Feed(chunk []byte) [][]byte {
	s.buf = append(s.buf, chunk...)

	var lines [][]byte
	start := 0
	for {
		i := bytes.IndexByte(s.buf[start:], '\n')
		if i < 0 {
			break
		}
		line := s.buf[start : start+i]
		start += i + 1

		if s.skipping {
			s.skipping = false
			continue
		}
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, line)
	}

	rest := s.buf[start:]
	if len(rest) > MaxFrameSize {
		if s.Overflow != nil {
			s.Overflow(len(rest))
		}
		s.skipping = true
		rest = rest[:0]
	}

	if len(lines) == 0 {
		s.buf = append(s.buf[:0], rest...)
		return nil
	}
	// lines alias s.buf; keep the remainder in a fresh slice
	s.buf = append([]byte(nil), rest...)
	return lines
}

// Pending returns the number of buffered bytes not yet terminated.
func (s *Splitter) Pending() int {
	return len(s.buf)
}
