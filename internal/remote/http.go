package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/markahope-aag/hazardos-sub008/internal/common"
)

// HTTPUploader posts photos as multipart forms to a REST endpoint. The
// endpoint answers with {"url": ..., "size": ...}.
type HTTPUploader struct {
	endpoint string
	deviceID string
	client   *http.Client
}

func NewHTTPUploader(endpoint, deviceID string, timeout time.Duration) *HTTPUploader {
	return &HTTPUploader{
		endpoint: endpoint,
		deviceID: deviceID,
		client:   &http.Client{Timeout: timeout},
	}
}

type uploadResponse struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

func (u *HTTPUploader) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	body, ct, err := multipartBody(req)
	if err != nil {
		return UploadResult{}, common.Permanent(err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return UploadResult{}, common.Permanent(err)
	}
	hreq.Header.Set("Content-Type", ct)
	if u.deviceID != "" {
		hreq.Header.Set(common.DeviceIDHeaderName, u.deviceID)
	}

	resp, err := u.client.Do(hreq)
	if err != nil {
		return UploadResult{}, common.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return UploadResult{}, classifyStatus(resp.StatusCode,
			fmt.Errorf("upload failed: %s; body: %s", resp.Status, bytes.TrimSpace(b)))
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return UploadResult{}, common.Transient(fmt.Errorf("decode upload response: %w", err))
	}
	if out.Size == 0 {
		out.Size = int64(len(req.Data))
	}
	return UploadResult{URL: out.URL, Size: out.Size}, nil
}

func multipartBody(req UploadRequest) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	fields := [][2]string{{"survey_id", req.SurveyID}, {"photo_id", req.ID}, {"filename", req.Filename}}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, req.Filename))
	h.Set("Content-Type", contentType(req))
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
