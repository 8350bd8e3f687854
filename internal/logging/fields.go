package logging

import "log/slog"

// Common field names so log lines stay grep-able across packages.
const (
	FieldOrgID    = "org_id"
	FieldJobID    = "job_id"
	FieldDevice   = "device_id"
	FieldMetric   = "metric"
	FieldRows     = "rows"
	FieldFile     = "file"
	FieldDuration = "duration_ms"
	FieldError    = "error"
)

// OrgID returns a slog attribute for the owning organization.
func OrgID(id string) slog.Attr {
	return slog.String(FieldOrgID, id)
}

// JobID returns a slog attribute for an ingestion job.
func JobID(id string) slog.Attr {
	return slog.String(FieldJobID, id)
}

// Device returns a slog attribute for a device identifier.
func Device(id string) slog.Attr {
	return slog.String(FieldDevice, id)
}

// Metric returns a slog attribute for a metric name.
func Metric(name string) slog.Attr {
	return slog.String(FieldMetric, name)
}

// Rows returns a slog attribute for a row count.
func Rows(n int) slog.Attr {
	return slog.Int(FieldRows, n)
}

// File returns a slog attribute for a file name.
func File(name string) slog.Attr {
	return slog.String(FieldFile, name)
}

// Duration returns a slog attribute for elapsed milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Err returns a slog attribute for an error, tolerating nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
