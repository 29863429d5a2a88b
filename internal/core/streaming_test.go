package core

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestDecodeReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello,world")...),
			expected: "hello,world",
		},
		{
			name:     "file without BOM",
			input:    []byte("hello,world"),
			expected: "hello,world",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "invalid byte replaced",
			input:    []byte{'h', 'e', 0x80, 'l', 'o'},
			expected: "he\ufffdlo",
		},
		{
			name:     "valid multibyte kept",
			input:    []byte("café,₹10"),
			expected: "café,₹10",
		},
		{
			name:     "utf16 little endian with BOM",
			input:    []byte{0xFF, 0xFE, 'a', 0, ',', 0, 'b', 0},
			expected: "a,b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(DecodeReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", string(got), tt.expected)
			}
		})
	}
}

func TestCountingReader(t *testing.T) {
	data := "0123456789"
	cr := NewCountingReader(strings.NewReader(data))

	buf := make([]byte, 4)
	if _, err := cr.Read(buf); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cr.BytesRead != 4 {
		t.Errorf("BytesRead = %d, want 4", cr.BytesRead)
	}
	if _, err := io.ReadAll(cr); err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if cr.BytesRead != int64(len(data)) {
		t.Errorf("BytesRead = %d, want %d", cr.BytesRead, len(data))
	}
}

func TestRowReader(t *testing.T) {
	input := "\ufeffOrder ID,Customer,Qty\n" +
		"o1,c1,2\n" +
		"\n" +
		" , ,\n" +
		"o2,c2\n" +
		"o3,c3,4,extra\n"

	rr, err := NewRowReader(strings.NewReader(input))
	if err != nil {
		t.Fatalf("NewRowReader() error = %v", err)
	}
	if got := rr.Header(); len(got) != 3 || got[0] != "Order ID" {
		t.Fatalf("Header() = %q", got)
	}

	type want struct {
		line int
		row  Row
	}
	wants := []want{
		{2, Row{"Order ID": "o1", "Customer": "c1", "Qty": "2"}},
		{5, Row{"Order ID": "o2", "Customer": "c2"}},
		{6, Row{"Order ID": "o3", "Customer": "c3", "Qty": "4"}},
	}

	for i, w := range wants {
		row, line, err := rr.Next()
		if err != nil {
			t.Fatalf("row %d: Next() error = %v", i, err)
		}
		if line != w.line {
			t.Errorf("row %d: line = %d, want %d", i, line, w.line)
		}
		if len(row) != len(w.row) {
			t.Errorf("row %d: got %v, want %v", i, row, w.row)
		}
		for k, v := range w.row {
			if row[k] != v {
				t.Errorf("row %d: %s = %q, want %q", i, k, row[k], v)
			}
		}
	}

	if _, _, err := rr.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after last row error = %v, want io.EOF", err)
	}
	if rr.BytesRead() != int64(len(input)) {
		t.Errorf("BytesRead() = %d, want %d", rr.BytesRead(), len(input))
	}
}

func TestRowReader_DuplicateHeaderFirstWins(t *testing.T) {
	rr, err := NewRowReader(strings.NewReader("id,id\na,b\n"))
	if err != nil {
		t.Fatalf("NewRowReader() error = %v", err)
	}
	row, _, err := rr.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if row["id"] != "a" {
		t.Errorf("id = %q, want first column value %q", row["id"], "a")
	}
}

func TestRowReader_Empty(t *testing.T) {
	for _, input := range []string{"", "\n\n", "\ufeff"} {
		_, err := NewRowReader(strings.NewReader(input))
		if !errors.Is(err, ErrEmptyFile) {
			t.Errorf("NewRowReader(%q) error = %v, want ErrEmptyFile", input, err)
		}
	}
}
