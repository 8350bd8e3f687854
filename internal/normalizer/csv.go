package normalizer

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoHeader means the first line of a delimited payload did not
// declare any usable columns.
var ErrNoHeader = errors.New("delimited payload has no usable header row")

// csvSource streams delimited text row by row. The header declares the
// column names; recognized columns map through the alias tables, a tags
// column carries a JSON-encoded object, and leftover columns become
// tags as-is.
type csvSource struct {
	reader   *csv.Reader
	header   []string
	rejected int
}

func newCSVSource(r io.Reader) (*csvSource, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	normalized := make([]string, len(header))
	for i, col := range header {
		normalized[i] = strings.ToLower(strings.TrimSpace(col))
	}
	if !hasAlias(normalized, deviceAliases) || !hasAlias(normalized, timestampAliases) {
		return nil, ErrNoHeader
	}

	return &csvSource{reader: reader, header: normalized}, nil
}

func hasAlias(header []string, aliases []string) bool {
	for _, col := range header {
		for _, alias := range aliases {
			if col == alias {
				return true
			}
		}
	}
	return false
}

func (s *csvSource) Next() (*Row, error) {
	for {
		record, err := s.reader.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			// A ragged or unquotable line is a row-level defect, not a
			// container failure.
			if errors.Is(err, csv.ErrFieldCount) || errors.Is(err, csv.ErrQuote) || errors.Is(err, csv.ErrBareQuote) {
				s.rejected++
				continue
			}
			return nil, fmt.Errorf("read record: %w", err)
		}

		element := make(map[string]any, len(s.header))
		for i, col := range s.header {
			if i >= len(record) {
				break
			}
			cell := strings.TrimSpace(record[i])
			if cell == "" {
				continue
			}
			element[col] = cell
		}

		// The tags cell is itself a JSON object; unparseable cells are
		// dropped rather than rejecting the row.
		if rawTags, ok := element["tags"].(string); ok {
			var parsed map[string]any
			if err := json.Unmarshal([]byte(rawTags), &parsed); err == nil {
				element["tags"] = parsed
			} else {
				delete(element, "tags")
			}
		}

		row, ok := mapElement(element)
		if !ok {
			s.rejected++
			continue
		}
		return row, nil
	}
}

func (s *csvSource) Rejected() int { return s.rejected }
