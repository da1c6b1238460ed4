package server

import (
	"net/http"
	"time"

	"github.com/DanikLP1/filevault/internal/drop"
	"github.com/go-chi/chi/v5"
)

type dropUploadResponse struct {
	URL       string `json:"url"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
}

func (s *Server) handleDropUpload(w http.ResponseWriter, r *http.Request) {
	log := loggerFrom(r)
	log.Info("drop_upload.start")

	part, cleanup, err := readUpload(w, r, s.cfg.DropMaxBytes)
	defer cleanup()
	if err != nil {
		writeUploadError(w, r, "drop_upload", err)
		return
	}

	f, err := s.drops.Upload(r.Context(), drop.UploadRequest{
		Body:        part.File,
		UploadName:  part.UploadName,
		Name:        part.Name,
		ContentType: part.ContentType,
	})
	if err != nil {
		writeServiceError(w, r, "drop_upload", err)
		return
	}
	writeJSON(w, http.StatusCreated, dropUploadResponse{
		URL:       s.baseURL(r) + "/s/" + f.Token,
		Token:     f.Token,
		ExpiresAt: f.ExpiresAt.UTC().Format(time.RFC3339),
		Name:      f.Name,
		Size:      f.Size,
	})
}

func (s *Server) handleDropDownload(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if len(token) == 0 || len(token) > 16 {
		writeError(w, http.StatusNotFound, "not_found", "link not found")
		return
	}
	dl, err := s.drops.Fetch(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, "drop_download", err)
		return
	}
	f := dl.File
	serveBlob(w, r, "drop_download", f.Name, f.ContentType, f.Size, dl.Body)
}
