package core

// streaming.go reads CSV sources row by row in constant memory.
//
// The raw bytes pass through a decoder that drops a UTF-8 BOM, decodes
// UTF-16 exports that carry a BOM, and replaces invalid UTF-8 with U+FFFD.
// A counting reader records how many bytes were consumed.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CountingReader wraps an io.Reader to track bytes read.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
}

// NewCountingReader returns a reader that counts bytes read from r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{reader: r}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.BytesRead += int64(n)
	return n, err
}

// DecodeReader strips a byte order mark and sanitizes text encoding.
func DecodeReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// RowReader streams header-keyed rows from a CSV source.
type RowReader struct {
	csv     *csv.Reader
	counter *CountingReader
	header  []string
	line    int
}

// NewRowReader reads the header row of r. It returns ErrEmptyFile when the
// source has no header.
func NewRowReader(r io.Reader) (*RowReader, error) {
	counter := NewCountingReader(r)

	cr := csv.NewReader(DecodeReader(counter))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rr := &RowReader{csv: cr, counter: counter}

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv header: %w", err)
		}
		if isEmptyRow(record) {
			continue
		}
		rr.header = make([]string, len(record))
		for i, h := range record {
			rr.header[i] = CleanCell(h)
		}
		return rr, nil
	}
}

// Header returns the cleaned column names.
func (rr *RowReader) Header() []string {
	return append([]string(nil), rr.header...)
}

// Next returns the next non-blank row and the file line it started on.
// It returns io.EOF after the last row. Short rows leave trailing columns
// absent; extra cells beyond the header are ignored. When a column name
// repeats, the first occurrence wins.
func (rr *RowReader) Next() (Row, int, error) {
	for {
		record, err := rr.csv.Read()
		if err != nil {
			return nil, 0, err
		}
		if isEmptyRow(record) {
			continue
		}

		line, _ := rr.csv.FieldPos(0)
		rr.line = line

		row := make(Row, len(rr.header))
		for i, name := range rr.header {
			if i >= len(record) {
				break
			}
			if _, dup := row[name]; dup {
				continue
			}
			row[name] = record[i]
		}
		return row, line, nil
	}
}

// Line returns the line number of the most recent row.
func (rr *RowReader) Line() int {
	return rr.line
}

// BytesRead returns the number of source bytes consumed so far.
func (rr *RowReader) BytesRead() int64 {
	return rr.counter.BytesRead
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
