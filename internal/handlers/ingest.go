package handlers

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gridpoint-systems/gridpoint/internal/logging"
	"github.com/gridpoint-systems/gridpoint/internal/metrics"
	"github.com/gridpoint-systems/gridpoint/internal/middleware"
	"github.com/gridpoint-systems/gridpoint/internal/models"
	"github.com/gridpoint-systems/gridpoint/internal/normalizer"
)

// upload is one decoded ingestion payload. size is -1 when the
// transport did not declare one.
type upload struct {
	body     io.Reader
	size     int64
	fileName string
	format   normalizer.Format
	closer   io.Closer
}

// Ingest handles POST /api/v1/ingest. Payloads at or below the async
// threshold are ingested before responding; larger ones are spooled
// into a background job and answered with 202 plus the job snapshot.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		writeError(w, http.StatusUnauthorized, "missing organization")
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), orgID)
	if err != nil {
		h.log.ErrorContext(r.Context(), "rate limit check failed", logging.Err(err))
		writeError(w, http.StatusInternalServerError, "rate limit check failed")
		return
	}
	if !allowed {
		writeError(w, http.StatusTooManyRequests, "upload rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)

	up, err := h.decodeUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if up.closer != nil {
		defer up.closer.Close()
	}

	if up.size >= 0 && up.size > h.opts.AsyncThresholdBytes {
		h.ingestAsync(w, r, orgID, up)
		return
	}

	// Unknown size: buffer up to the threshold. Spilling past it means
	// the payload is large enough for the job path.
	if up.size < 0 {
		head := make([]byte, h.opts.AsyncThresholdBytes+1)
		n, readErr := io.ReadFull(up.body, head)
		if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if int64(n) > h.opts.AsyncThresholdBytes {
			up.body = io.MultiReader(bytes.NewReader(head[:n]), up.body)
			up.size = -1
			h.ingestAsync(w, r, orgID, up)
			return
		}
		up.body = bytes.NewReader(head[:n])
		up.size = int64(n)
	}

	h.ingestSync(w, r, orgID, up)
}

func (h *Handler) ingestSync(w http.ResponseWriter, r *http.Request, orgID string, up upload) {
	src, err := normalizer.New(up.format, up.body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.executor.Ingest(r.Context(), orgID, src, nil)
	if err != nil {
		h.log.WarnContext(r.Context(), "synchronous ingest failed",
			logging.OrgID(orgID), logging.File(up.fileName), logging.Err(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if up.size > 0 {
		metrics.IngestBytesTotal.Add(float64(up.size))
	}

	h.log.InfoContext(r.Context(), "synchronous ingest complete",
		logging.OrgID(orgID), logging.Rows(result.Created), "rejected", result.Rejected)

	writeJSON(w, http.StatusOK, models.IngestResponse{
		Created:  result.Created,
		Rejected: result.Rejected,
		Failed:   result.Failed,
	})
}

func (h *Handler) ingestAsync(w http.ResponseWriter, r *http.Request, orgID string, up upload) {
	job, err := h.jobs.Enqueue(r.Context(), orgID, up.fileName, up.format, up.body)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to enqueue ingestion job",
			logging.OrgID(orgID), logging.File(up.fileName), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to queue ingestion job")
		return
	}
	if up.size > 0 {
		metrics.IngestBytesTotal.Add(float64(up.size))
	}

	writeJSON(w, http.StatusAccepted, job)
}

// decodeUpload extracts the payload from either a multipart form (field
// "file") or a raw request body.
func (h *Handler) decodeUpload(r *http.Request) (upload, error) {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	if strings.HasPrefix(mediaType, "multipart/") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return upload{}, errMissingFile
		}
		return upload{
			body:     file,
			size:     header.Size,
			fileName: header.Filename,
			format:   normalizer.DetectFormat(header.Header.Get("Content-Type"), header.Filename),
			closer:   file,
		}, nil
	}

	fileName := r.URL.Query().Get("filename")
	return upload{
		body:     r.Body,
		size:     r.ContentLength,
		fileName: fileName,
		format:   normalizer.DetectFormat(contentType, fileName),
	}, nil
}

var errMissingFile = &uploadError{"multipart upload requires a \"file\" field"}

type uploadError struct{ msg string }

func (e *uploadError) Error() string { return e.msg }
