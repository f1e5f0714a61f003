// Package ingest turns the runner's arbitrarily chunked byte stream into
// complete logical records. A record split across two deliveries is buffered
// until its terminator arrives; buffering is bounded to the largest
// unterminated record, never the whole stream.
package ingest

import "bytes"

// DefaultMaxRecordBytes caps how much of a single unterminated record is
// buffered before it is force-emitted. Real runner lines are far smaller;
// this is a safety valve against pathological output.
const DefaultMaxRecordBytes = 1 << 20

// Scanner accumulates chunks and yields newline-terminated records.
// It is not safe for concurrent use; the pipeline feeds it from one
// goroutine in arrival order.
type Scanner struct {
	buf []byte
	max int
}

func NewScanner(maxRecordBytes int) *Scanner {
	if maxRecordBytes <= 0 {
		maxRecordBytes = DefaultMaxRecordBytes
	}
	return &Scanner{max: maxRecordBytes}
}

// Feed appends a chunk and returns the complete records it finished.
// A trailing CR before the LF is stripped. If the pending record exceeds
// the configured maximum without a terminator it is emitted as-is.
func (s *Scanner) Feed(p []byte) []string {
	s.buf = append(s.buf, p...)

	var records []string
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		records = append(records, string(trimCR(s.buf[:i])))
		s.buf = s.buf[i+1:]
	}

	if len(s.buf) >= s.max {
		records = append(records, string(trimCR(s.buf)))
		s.buf = nil
	}
	return records
}

// Flush returns the final unterminated record at stream end, if any.
func (s *Scanner) Flush() (string, bool) {
	if len(s.buf) == 0 {
		return "", false
	}
	record := string(trimCR(s.buf))
	s.buf = nil
	return record, true
}

// Pending reports how many bytes of an unterminated record are buffered.
func (s *Scanner) Pending() int {
	return len(s.buf)
}

func trimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}
