// Package normalizer converts heterogeneous upload payloads into a
// canonical stream of measurement rows.
//
// Three shapes are supported: a single-metric JSON object carrying a
// device/metric pair plus a rows array, a flat JSON array whose elements
// name their fields per a fixed alias table (the shape of third-party
// open-data exports), and delimited text with a header row. A malformed
// row never aborts the pass; it is skipped and counted. Only a broken
// container (invalid JSON, unusable header) fails the whole input.
package normalizer

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Format is the declared or detected payload encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ErrUnsupportedFormat is returned when no decoder exists for a format.
var ErrUnsupportedFormat = errors.New("unsupported payload format")

// Row is one canonical measurement row, independent of upload shape.
type Row struct {
	DeviceID   string
	Metric     string
	RecordedAt time.Time
	Value      *float64
	Tags       map[string]any
}

// Source streams canonical rows. Next returns io.EOF after the last
// row; any other error means the container itself is unreadable and the
// whole pass has failed. Rejected reports the running count of rows
// skipped for row-level defects.
type Source interface {
	Next() (*Row, error)
	Rejected() int
}

// New returns a Source decoding r according to format.
func New(format Format, r io.Reader) (Source, error) {
	switch format {
	case FormatJSON:
		return newJSONSource(r)
	case FormatCSV:
		return newCSVSource(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// DetectFormat picks a Format from a declared content type and file
// name, defaulting to JSON.
func DetectFormat(contentType, fileName string) Format {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "csv") {
		return FormatCSV
	}
	if strings.Contains(ct, "json") {
		return FormatJSON
	}
	if strings.HasSuffix(strings.ToLower(fileName), ".csv") {
		return FormatCSV
	}
	return FormatJSON
}

// Column alias tables. Third-party exports rarely agree on names; the
// first matching, non-empty field wins.
var (
	deviceAliases    = []string{"device_id", "deviceid", "device", "location", "sensor", "sensor_id", "name"}
	metricAliases    = []string{"metric", "parameter", "measurement", "type", "metric_name"}
	timestampAliases = []string{"recorded_at", "timestamp", "time", "datetime", "date", "created_at"}
	valueAliases     = []string{"value", "reading", "measurement", "amount"}

	consumedKeys = buildConsumedKeys()
)

func buildConsumedKeys() map[string]struct{} {
	keys := make(map[string]struct{})
	for _, group := range [][]string{deviceAliases, metricAliases, timestampAliases, valueAliases} {
		for _, k := range group {
			keys[k] = struct{}{}
		}
	}
	keys["tags"] = struct{}{}
	return keys
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp converts a raw timestamp field to an absolute instant.
// Strings are tried against the known layouts; numbers are taken as
// Unix seconds. Anything else is a row-level defect.
func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
		return time.Time{}, false
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return time.Time{}, false
		}
		sec, frac := math.Modf(t)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	case map[string]any:
		// Open-data exports nest the instant as {"utc": ..., "local": ...}.
		if utc, ok := t["utc"]; ok {
			return parseTimestamp(utc)
		}
		if local, ok := t["local"]; ok {
			return parseTimestamp(local)
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// parseValue converts a raw value field to a finite float. Value is
// nullable, so unparseable or non-finite values become absent rather
// than rejecting the row.
func parseValue(v any) *float64 {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		f := t
		return &f
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// firstMatch returns the first non-empty value among the aliased keys.
func firstMatch(m map[string]any, aliases []string) (any, bool) {
	for _, key := range aliases {
		if v, ok := m[key]; ok && v != nil {
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			return v, true
		}
	}
	return nil, false
}

func firstString(m map[string]any, aliases []string) string {
	v, ok := firstMatch(m, aliases)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// mapElement converts one aliased JSON element into a canonical row.
// A false return means the row was defective.
func mapElement(m map[string]any) (*Row, bool) {
	device := firstString(m, deviceAliases)
	metric := firstString(m, metricAliases)
	if device == "" || metric == "" {
		return nil, false
	}

	rawTS, ok := firstMatch(m, timestampAliases)
	if !ok {
		return nil, false
	}
	recordedAt, ok := parseTimestamp(rawTS)
	if !ok {
		return nil, false
	}

	var value *float64
	if rawValue, ok := firstMatch(m, valueAliases); ok {
		value = parseValue(rawValue)
	}

	tags := make(map[string]any)
	for k, v := range m {
		if _, consumed := consumedKeys[k]; consumed || v == nil {
			continue
		}
		tags[k] = v
	}
	if rawTags, ok := m["tags"].(map[string]any); ok {
		for k, v := range rawTags {
			tags[k] = v
		}
	}
	if len(tags) == 0 {
		tags = nil
	}

	return &Row{
		DeviceID:   device,
		Metric:     metric,
		RecordedAt: recordedAt,
		Value:      value,
		Tags:       tags,
	}, true
}
