package httpapi

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/markahope-aag/hazardos-sub008/internal/common"
	"github.com/markahope-aag/hazardos-sub008/internal/logging"
	"github.com/markahope-aag/hazardos-sub008/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, maxBytes int64) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	srv := httptest.NewUnstartedServer(nil)
	h := NewPhotoHandler(dir, "", maxBytes, logging.Nop())
	srv.Config.Handler = NewRouter(h, logging.Nop())
	srv.Start()
	t.Cleanup(srv.Close)
	h.baseURL = srv.URL + "/files"
	return srv, dir
}

func TestUpload_WithHTTPUploader(t *testing.T) {
	srv, dir := newServer(t, 0)
	up := remote.NewHTTPUploader(srv.URL+"/photos", "tablet-1", 2*time.Second)

	req := remote.UploadRequest{ID: "01HX", SurveyID: "s1", Filename: "roof.jpg", ContentType: "image/jpeg", Data: []byte("jpeg-bytes")}
	res, err := up.Upload(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(len("jpeg-bytes")), res.Size)
	assert.Equal(t, srv.URL+"/files/surveys/s1/photos/01HX-roof.jpg", res.URL)

	stored, err := os.ReadFile(filepath.Join(dir, "surveys", "s1", "photos", "01HX-roof.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), stored)

	// retrying the same photo overwrites instead of duplicating
	_, err = up.Upload(context.Background(), req)
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(dir, "surveys", "s1", "photos"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	resp, err := http.Get(res.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "jpeg-bytes", string(body))
}

func TestUpload_MissingDeviceIDIsPermanent(t *testing.T) {
	srv, _ := newServer(t, 0)
	up := remote.NewHTTPUploader(srv.URL+"/photos", "", 2*time.Second)

	_, err := up.Upload(context.Background(), remote.UploadRequest{ID: "1", SurveyID: "s1", Filename: "a.jpg", Data: []byte("x")})
	require.Error(t, err)
	assert.True(t, common.IsPermanent(err))
	assert.Contains(t, err.Error(), "401")
}

func multipartRequest(t *testing.T, fields map[string]string, file []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		part, err := w.CreateFormFile("file", "a.jpg")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/photos", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set(common.DeviceIDHeaderName, "tablet-1")
	return req
}

func TestUpload_Validation(t *testing.T) {
	dir := t.TempDir()
	router := NewRouter(NewPhotoHandler(dir, "http://cdn/files", 2048, nil), logging.Nop())

	tests := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"missing ids", multipartRequest(t, map[string]string{"filename": "a.jpg"}, []byte("x")), http.StatusBadRequest},
		{"path traversal", multipartRequest(t, map[string]string{"survey_id": "../etc", "photo_id": "1"}, []byte("x")), http.StatusBadRequest},
		{"missing file", multipartRequest(t, map[string]string{"survey_id": "s1", "photo_id": "1"}, nil), http.StatusBadRequest},
		{"too large", multipartRequest(t, map[string]string{"survey_id": "s1", "photo_id": "1"}, bytes.Repeat([]byte("x"), 4096)), http.StatusRequestEntityTooLarge},
		{"not multipart", httptest.NewRequest(http.MethodPost, "/photos", bytes.NewBufferString("{}")), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, tt.req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHealth(t *testing.T) {
	router := NewRouter(NewPhotoHandler(t.TempDir(), "", 0, nil), logging.Nop())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
