// Package record reads a single flight scenario from a delimited file.
package record

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// EmptyInputError is returned when the input has a header but no data row
type EmptyInputError struct {
	Source string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("input %s has no data rows", e.Source)
}

// MalformedInputError is returned when the input cannot be parsed as a
// header plus one data row
type MalformedInputError struct {
	Source string
	Reason string
	Err    error
}

func (e *MalformedInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("input %s is malformed: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("input %s is malformed: %s", e.Source, e.Reason)
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// Value is one raw cell as read from the input file
type Value string

// Float parses the cell as a number
func (v Value) Float() (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (v Value) String() string {
	return string(v)
}

// RawRecord is one flight scenario keyed by original column name.
// Columns keeps the header order for display.
type RawRecord struct {
	Columns []string
	values  map[string]Value
}

// New builds a record from parallel header and value slices
func New(columns []string, values []string) RawRecord {
	r := RawRecord{
		Columns: make([]string, 0, len(columns)),
		values:  make(map[string]Value, len(columns)),
	}
	for i, col := range columns {
		if _, dup := r.values[col]; dup {
			continue
		}
		v := ""
		if i < len(values) {
			v = values[i]
		}
		r.Columns = append(r.Columns, col)
		r.values[col] = Value(v)
	}
	return r
}

// FromMap builds a record from a column map, columns in the given order
func FromMap(columns []string, m map[string]string) RawRecord {
	values := make([]string, len(columns))
	for i, c := range columns {
		values[i] = m[c]
	}
	return New(columns, values)
}

// Get returns the raw value of a column
func (r RawRecord) Get(column string) (Value, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Has reports whether the record has a column
func (r RawRecord) Has(column string) bool {
	_, ok := r.values[column]
	return ok
}

// Len returns the number of columns
func (r RawRecord) Len() int {
	return len(r.Columns)
}

// Read parses a header row and the first data row from r.
// Rows after the first are ignored.
func Read(r io.Reader, source string) (RawRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return RawRecord{}, &EmptyInputError{Source: source}
	}
	if err != nil {
		return RawRecord{}, &MalformedInputError{Source: source, Reason: "unreadable header", Err: err}
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	row, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return RawRecord{}, &EmptyInputError{Source: source}
	}
	if err != nil {
		return RawRecord{}, &MalformedInputError{Source: source, Reason: "unreadable data row", Err: err}
	}
	if len(row) != len(header) {
		reason := fmt.Sprintf("data row has %d fields, header has %d", len(row), len(header))
		return RawRecord{}, &MalformedInputError{Source: source, Reason: reason}
	}

	extra := 0
	for {
		if _, err := reader.Read(); err != nil {
			break
		}
		extra++
	}
	if extra > 0 {
		log.Warn().Str("source", source).Int("ignored_rows", extra).Msg("input has more than one data row, scoring the first")
	}

	return New(header, row), nil
}

// ReadFile reads a record from a CSV file on disk
func ReadFile(path string) (RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return RawRecord{}, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	return Read(f, path)
}
