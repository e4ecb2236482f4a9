package stream

import "bytes"

// LineFramer reassembles newline-delimited frames from arbitrary byte
// chunks. The transport hands over whatever chunk sizes it likes; frame
// boundaries never align with chunk boundaries, and a chunk may even end
// mid-rune. Splitting only at '\n' keeps multi-byte characters intact
// because UTF-8 continuation bytes never equal 0x0A.
type LineFramer struct {
	buf []byte
}

// NewLineFramer returns an empty framer. A framer is single-use per
// stream; restarting means constructing a new one.
func NewLineFramer() *LineFramer {
	return &LineFramer{}
}

// Push appends one chunk and returns every line it completed, in order.
// A trailing '\r' is stripped from each line. The unterminated tail stays
// buffered for the next Push.
func (f *LineFramer) Push(chunk []byte) []string {
	f.buf = append(f.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			return lines
		}
		lines = append(lines, string(trimCR(f.buf[:i])))
		f.buf = f.buf[i+1:]
	}
}

// Flush returns the buffered remainder as a final line, if any. Call once
// when the transport reports end of stream.
func (f *LineFramer) Flush() (string, bool) {
	if len(f.buf) == 0 {
		return "", false
	}
	line := string(trimCR(f.buf))
	f.buf = nil
	return line, true
}

// Buffered reports how many bytes are held waiting for a newline.
func (f *LineFramer) Buffered() int {
	return len(f.buf)
}

func trimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}
