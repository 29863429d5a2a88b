package core

// convert.go turns raw CSV cells into typed values.
//
// Export files are messy: Excel wraps values as ="...", amounts carry
// currency symbols and thousands separators, accounting exports write
// negatives as (12.50). Cells are cleaned before they are parsed.

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/ncruces/go-strftime"
	"github.com/shopspring/decimal"
)

// numericRegex validates a number after cleanup: integers, decimals and
// scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

var (
	errInvalidNumber = errors.New("invalid number")
	errInvalidDate   = errors.New("invalid date")
)

// CleanCell removes common CSV artifacts from a cell value:
// surrounding whitespace, the Excel ="..." wrapper and surrounding quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// ParseDecimal parses an amount or quantity. Empty input is zero.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.NewReplacer("$", "", "€", "", "£", "", "₹", "", ",", "").Replace(s)
	s = strings.TrimSpace(s)

	if !numericRegex.MatchString(s) {
		return decimal.Zero, errInvalidNumber
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", errInvalidNumber, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseDate parses a date using a strftime format such as %Y-%m-%d. A
// format without directives is taken as a Go reference layout. Empty input
// is a null date.
func ParseDate(s, format string) (pgtype.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Date{}, nil
	}
	if format == "" {
		return pgtype.Date{}, fmt.Errorf("%w: no date format configured", errInvalidDate)
	}

	var (
		t   time.Time
		err error
	)
	if strings.Contains(format, "%") {
		t, err = strftime.Parse(format, s)
	} else {
		t, err = time.Parse(format, s)
	}
	if err != nil {
		return pgtype.Date{}, fmt.Errorf("%w: expected format %q", errInvalidDate, format)
	}

	y, m, d := t.Date()
	return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}, nil
}

// ToPgText converts a cell to pgtype.Text. Invalid means the column was absent.
func ToPgText(s string, present bool) pgtype.Text {
	if !present {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
