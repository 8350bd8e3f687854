package normalizer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// singleMetricEnvelope is the "standard" upload shape: one device/metric
// pair at the top level plus an array of observations inheriting them.
type singleMetricEnvelope struct {
	DeviceID string        `json:"device_id"`
	Metric   string        `json:"metric"`
	Rows     []singleEntry `json:"rows"`
}

type singleEntry struct {
	DeviceID   string          `json:"device_id"`
	Metric     string          `json:"metric"`
	RecordedAt json.RawMessage `json:"recorded_at"`
	Value      json.RawMessage `json:"value"`
	Tags       map[string]any  `json:"tags"`
}

// newJSONSource sniffs the top-level JSON structure and returns the
// matching source. An array streams element by element; an object with
// a rows key is the single-metric envelope; any other object is treated
// as a one-element array, which absorbs single-record exports.
func newJSONSource(r io.Reader) (Source, error) {
	br := bufio.NewReader(r)

	first, err := peekFirstByte(br)
	if err != nil {
		return nil, fmt.Errorf("empty payload")
	}

	switch first {
	case '[':
		return &arraySource{dec: json.NewDecoder(br)}, nil
	case '{':
		return newObjectSource(br)
	default:
		return nil, fmt.Errorf("unsupported JSON structure: expected object or array")
	}
}

func peekFirstByte(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if strings.TrimSpace(string(b)) == "" {
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}

func newObjectSource(br *bufio.Reader) (Source, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(br)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}

	if _, hasRows := raw["rows"]; !hasRows {
		// No rows key: re-map the whole object as one aliased element.
		element := make(map[string]any, len(raw))
		for k, v := range raw {
			var decoded any
			if err := json.Unmarshal(v, &decoded); err != nil {
				return nil, fmt.Errorf("invalid JSON payload: %w", err)
			}
			element[k] = decoded
		}
		return &sliceSource{elements: []map[string]any{element}}, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	var envelope singleMetricEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid single-metric payload: %w", err)
	}

	return &singleSource{envelope: envelope}, nil
}

// singleSource yields rows from a single-metric envelope. Entries may
// override the inherited device/metric per row.
type singleSource struct {
	envelope singleMetricEnvelope
	pos      int
	rejected int
}

func (s *singleSource) Next() (*Row, error) {
	for s.pos < len(s.envelope.Rows) {
		entry := s.envelope.Rows[s.pos]
		s.pos++

		device := strings.TrimSpace(entry.DeviceID)
		if device == "" {
			device = strings.TrimSpace(s.envelope.DeviceID)
		}
		metric := strings.TrimSpace(entry.Metric)
		if metric == "" {
			metric = strings.TrimSpace(s.envelope.Metric)
		}
		if device == "" || metric == "" {
			s.rejected++
			continue
		}

		rawTS := decodeRaw(entry.RecordedAt)
		if rawTS == nil {
			s.rejected++
			continue
		}
		recordedAt, ok := parseTimestamp(rawTS)
		if !ok {
			s.rejected++
			continue
		}

		var value *float64
		if rawValue := decodeRaw(entry.Value); rawValue != nil {
			value = parseValue(rawValue)
		}

		tags := entry.Tags
		if len(tags) == 0 {
			tags = nil
		}

		return &Row{
			DeviceID:   device,
			Metric:     metric,
			RecordedAt: recordedAt,
			Value:      value,
			Tags:       tags,
		}, nil
	}
	return nil, io.EOF
}

func (s *singleSource) Rejected() int { return s.rejected }

func decodeRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// arraySource streams a flat JSON array element by element so large
// open-data exports never need to fit in memory at once.
type arraySource struct {
	dec      *json.Decoder
	started  bool
	rejected int
}

func (s *arraySource) Next() (*Row, error) {
	if !s.started {
		tok, err := s.dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid JSON payload: %w", err)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			return nil, fmt.Errorf("unsupported JSON structure: expected array")
		}
		s.started = true
	}

	for s.dec.More() {
		var element map[string]any
		if err := s.dec.Decode(&element); err != nil {
			return nil, fmt.Errorf("invalid JSON payload: %w", err)
		}
		row, ok := mapElement(element)
		if !ok {
			s.rejected++
			continue
		}
		return row, nil
	}

	// Consume the closing bracket so trailing garbage surfaces as an error.
	if _, err := s.dec.Token(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	return nil, io.EOF
}

func (s *arraySource) Rejected() int { return s.rejected }

// sliceSource yields rows from pre-decoded elements.
type sliceSource struct {
	elements []map[string]any
	pos      int
	rejected int
}

func (s *sliceSource) Next() (*Row, error) {
	for s.pos < len(s.elements) {
		element := s.elements[s.pos]
		s.pos++
		row, ok := mapElement(element)
		if !ok {
			s.rejected++
			continue
		}
		return row, nil
	}
	return nil, io.EOF
}

func (s *sliceSource) Rejected() int { return s.rejected }
