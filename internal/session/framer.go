package session

import "bytes"

// Framer reassembles discrete event records from an arbitrarily chunked
// byte stream. Chunks may split a record anywhere; the unterminated
// remainder is carried forward and prefixed onto the next chunk. Only
// newline-terminated records are ever emitted.
type Framer struct {
	rem []byte
}

// Feed appends a chunk to the buffer and returns every complete record it
// now contains, in order. Blank records are dropped.
func (f *Framer) Feed(chunk []byte) [][]byte {
	f.rem = append(f.rem, chunk...)

	var records [][]byte
	for {
		i := bytes.IndexByte(f.rem, '\n')
		if i < 0 {
			return records
		}
		line := bytes.TrimRight(f.rem[:i], "\r")
		if len(bytes.TrimSpace(line)) > 0 {
			records = append(records, append([]byte(nil), line...))
		}
		f.rem = append([]byte(nil), f.rem[i+1:]...)
	}
}

// Flush returns the trailing unterminated record at end of stream, or nil
// if the buffer holds nothing but whitespace. The framer is reset.
func (f *Framer) Flush() []byte {
	line := bytes.TrimRight(f.rem, "\r")
	f.rem = nil
	if len(bytes.TrimSpace(line)) == 0 {
		return nil
	}
	return line
}
