package remote

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/markahope-aag/hazardos-sub008/internal/common"
)

// UploadRequest is one photo payload with its metadata.
type UploadRequest struct {
	ID          string
	SurveyID    string
	Filename    string
	ContentType string
	Data        []byte
}

// UploadResult is what the endpoint stored.
type UploadResult struct {
	URL  string
	Size int64
}

// Uploader sends a photo to the upload endpoint. Failures are classified
// with common.Transient or common.Permanent.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (UploadResult, error)
}

// ObjectKey is the storage key of a photo. It is stable for a queue item so
// a repeated upload overwrites rather than duplicates.
func ObjectKey(req UploadRequest) string {
	name := path.Base(strings.ReplaceAll(req.Filename, "\\", "/"))
	if name == "." || name == "/" {
		name = "photo"
	}
	return path.Join("surveys", req.SurveyID, "photos", req.ID+"-"+name)
}

func contentType(req UploadRequest) string {
	if req.ContentType != "" {
		return req.ContentType
	}
	return http.DetectContentType(req.Data)
}

// classifyStatus maps an HTTP status to an error class. Timeouts, throttling
// and server errors are retryable; other client errors are not.
func classifyStatus(code int, err error) error {
	if err == nil {
		err = fmt.Errorf("upload failed: %d %s", code, http.StatusText(code))
	}
	if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
		return common.Permanent(err)
	}
	return common.Transient(err)
}
