// Package httpapi is the photo receiver of the reference backend. It accepts
// the multipart uploads sent by remote.HTTPUploader and serves the stored
// files back under /files/.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/markahope-aag/hazardos-sub008/internal/logging"
	"github.com/markahope-aag/hazardos-sub008/internal/remote"
)

const defaultMaxPhotoBytes = 32 << 20

type PhotoHandler struct {
	dir      string
	baseURL  string
	maxBytes int64
	log      logging.Logger
}

// NewPhotoHandler stores photos below dir. baseURL is the public prefix the
// stored files are served under.
func NewPhotoHandler(dir, baseURL string, maxBytes int64, log logging.Logger) *PhotoHandler {
	if maxBytes <= 0 {
		maxBytes = defaultMaxPhotoBytes
	}
	if log == nil {
		log = logging.Nop()
	}
	return &PhotoHandler{
		dir:      dir,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
		log:      log.With("module", "photo_receiver"),
	}
}

type uploadResponse struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

func validID(s string) bool {
	return s != "" && !strings.ContainsAny(s, `/\`) && !strings.Contains(s, "..")
}

// Upload stores one photo. Uploading the same photo id again overwrites the
// file, so client retries are harmless.
func (h *PhotoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.ContentLength > h.maxBytes {
		http.Error(w, "photo too large", http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "photo too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "malformed multipart body", http.StatusBadRequest)
		return
	}

	req := remote.UploadRequest{
		ID:       r.FormValue("photo_id"),
		SurveyID: r.FormValue("survey_id"),
		Filename: r.FormValue("filename"),
	}
	if !validID(req.ID) || !validID(req.SurveyID) {
		http.Error(w, "survey_id and photo_id are required", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file part is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	key := remote.ObjectKey(req)
	size, err := h.store(key, file)
	if err != nil {
		h.log.Error(ctx, "storing photo failed", "key", key, "err", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	h.log.Info(ctx, "photo stored", "key", key, "size", size, "device", DeviceID(ctx))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(uploadResponse{URL: h.baseURL + "/" + key, Size: size})
}

// store writes the file through a temporary name so readers never see a
// partial photo.
func (h *PhotoHandler) store(key string, src io.Reader) (int64, error) {
	path := filepath.Join(h.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, err
	}
	return n, nil
}
