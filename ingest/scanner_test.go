package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScannerSingleChunk(t *testing.T) {
	s := NewScanner(0)
	records := s.Feed([]byte("one\ntwo\nthree\n"))
	assert.Equal(t, []string{"one", "two", "three"}, records)

	_, ok := s.Flush()
	assert.False(t, ok)
}

func TestScannerSplitAcrossChunks(t *testing.T) {
	s := NewScanner(0)

	records := s.Feed([]byte("par"))
	assert.Empty(t, records)

	records = s.Feed([]byte("tial\nnext"))
	assert.Equal(t, []string{"partial"}, records)

	record, ok := s.Flush()
	require.True(t, ok)
	assert.Equal(t, "next", record)
}

func TestScannerByteAtATime(t *testing.T) {
	input := "alpha\nbeta\ngamma\n"
	s := NewScanner(0)

	var records []string
	for i := 0; i < len(input); i++ {
		records = append(records, s.Feed([]byte{input[i]})...)
	}
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, records)
}

func TestScannerStripsCarriageReturn(t *testing.T) {
	s := NewScanner(0)
	records := s.Feed([]byte("windows line\r\nplain line\n"))
	assert.Equal(t, []string{"windows line", "plain line"}, records)
}

func TestScannerFlushStripsCarriageReturn(t *testing.T) {
	s := NewScanner(0)
	s.Feed([]byte("tail\r"))

	record, ok := s.Flush()
	require.True(t, ok)
	assert.Equal(t, "tail", record)
}

func TestScannerOversizeRecordForceEmitted(t *testing.T) {
	s := NewScanner(8)
	records := s.Feed([]byte("0123456789"))
	require.Len(t, records, 1)
	assert.Equal(t, "0123456789", records[0])
	assert.Zero(t, s.Pending())
}

func TestScannerEmptyLines(t *testing.T) {
	s := NewScanner(0)
	records := s.Feed([]byte("\n\nx\n"))
	assert.Equal(t, []string{"", "", "x"}, records)
}
