package server

import (
	"net/http"
	"time"

	"github.com/DanikLP1/filevault/internal/db"
	"github.com/DanikLP1/filevault/internal/files"
	"github.com/DanikLP1/filevault/internal/promo"
)

type fileView struct {
	ID          uint       `json:"id"`
	Name        string     `json:"name"`
	Size        int64      `json:"size"`
	SizeDisplay string     `json:"size_display"`
	ContentType string     `json:"content_type"`
	UploadedAt  time.Time  `json:"uploaded_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

func toFileView(f *db.File) fileView {
	return fileView{
		ID:          f.ID,
		Name:        f.Name,
		Size:        f.Size,
		SizeDisplay: promo.FormatStorage(f.Size),
		ContentType: f.ContentType,
		UploadedAt:  f.UploadedAt,
		DeletedAt:   f.DeletedAt,
	}
}

type filesResponse struct {
	Items []fileView `json:"items"`
	files.Usage
}

func (s *Server) listing(w http.ResponseWriter, r *http.Request, op string, list func() ([]db.File, error)) {
	u := userFrom(r)
	items, err := list()
	if err != nil {
		writeServiceError(w, r, op, err)
		return
	}
	usage, err := s.files.Usage(r.Context(), u)
	if err != nil {
		writeServiceError(w, r, op, err)
		return
	}
	out := filesResponse{Items: make([]fileView, 0, len(items)), Usage: usage}
	for i := range items {
		out.Items = append(out.Items, toFileView(&items[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	s.listing(w, r, "list_files", func() ([]db.File, error) { return s.files.List(r.Context(), u.ID, 0) })
}

func (s *Server) handleTrash(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	s.listing(w, r, "list_trash", func() ([]db.File, error) { return s.files.Trash(r.Context(), u.ID) })
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	log := loggerFrom(r).With("user_id", u.ID)
	log.Info("upload_file.start")

	if !u.IsSubscribed {
		writeServiceError(w, r, "upload_file", files.ErrSubscriptionRequired)
		return
	}
	part, cleanup, err := readUpload(w, r, s.cfg.UploadMaxBytes)
	defer cleanup()
	if err != nil {
		writeUploadError(w, r, "upload_file", err)
		return
	}
	f, err := s.files.Upload(r.Context(), u.ID, files.UploadRequest{
		Body:        part.File,
		UploadName:  part.UploadName,
		Name:        part.Name,
		ContentType: part.ContentType,
	})
	if err != nil {
		writeServiceError(w, r, "upload_file", err)
		return
	}
	writeJSON(w, http.StatusCreated, toFileView(f))
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "file not found")
		return
	}
	dl, err := s.files.Open(r.Context(), u.ID, id)
	if err != nil {
		writeServiceError(w, r, "download_file", err)
		return
	}
	serveBlob(w, r, "download_file", dl.File.Name, dl.File.ContentType, dl.File.Size, dl.Body)
}

func (s *Server) fileAction(op string, fn func(r *http.Request, owner, id uint) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := userFrom(r)
		id, ok := idParam(r)
		if !ok {
			writeError(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		if err := fn(r, u.ID, id); err != nil {
			writeServiceError(w, r, op, err)
			return
		}
		loggerFrom(r).Info(op+".ok", "user_id", u.ID, "file_id", id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	s.fileAction("delete_file", func(r *http.Request, owner, id uint) error {
		return s.files.Delete(r.Context(), owner, id)
	})(w, r)
}

func (s *Server) handleRestoreFile(w http.ResponseWriter, r *http.Request) {
	s.fileAction("restore_file", func(r *http.Request, owner, id uint) error {
		return s.files.Restore(r.Context(), owner, id)
	})(w, r)
}

func (s *Server) handlePurgeFile(w http.ResponseWriter, r *http.Request) {
	s.fileAction("purge_file", func(r *http.Request, owner, id uint) error {
		return s.files.Purge(r.Context(), owner, id)
	})(w, r)
}

type meResponse struct {
	Email        string `json:"email"`
	IsStaff      bool   `json:"is_staff"`
	IsSubscribed bool   `json:"is_subscribed"`
	QuotaDisplay string `json:"quota_display"`
	files.Usage
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	usage, err := s.files.Usage(r.Context(), u)
	if err != nil {
		writeServiceError(w, r, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		Email:        u.Email,
		IsStaff:      u.IsStaff,
		IsSubscribed: u.IsSubscribed,
		QuotaDisplay: promo.FormatStorage(u.StorageQuota),
		Usage:        usage,
	})
}
