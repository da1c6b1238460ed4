package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/DanikLP1/filevault/internal/storage"
)

// multipart до этого размера держится в памяти, остальное уходит во временные файлы
const multipartMemory = 8 << 20

type uploadPart struct {
	File        multipart.File
	UploadName  string
	Name        string
	ContentType string
}

var (
	errMissingFile  = errors.New("multipart field \"file\" is required")
	errBadMultipart = errors.New("malformed multipart body")
)

// readUpload разбирает multipart с полем file и необязательными name, content_type.
// cleanup нужно вызвать после записи байтов.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (*uploadPart, func(), error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, func() {}, storage.ErrTooLarge
		}
		return nil, func() {}, fmt.Errorf("%w: %v", errBadMultipart, err)
	}
	cleanup := func() { _ = r.MultipartForm.RemoveAll() }

	f, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, cleanup, errMissingFile
	}
	if err != nil {
		return nil, cleanup, err
	}
	ct := r.FormValue("content_type")
	if ct == "" {
		ct = hdr.Header.Get("Content-Type")
	}
	prev := cleanup
	cleanup = func() {
		_ = f.Close()
		prev()
	}
	return &uploadPart{File: f, UploadName: hdr.Filename, Name: r.FormValue("name"), ContentType: ct}, cleanup, nil
}

func writeUploadError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, errMissingFile) || errors.Is(err, errBadMultipart) {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeServiceError(w, r, op, err)
}

// serveBlob стримит тело как вложение. Ошибку после начала ответа можно только залогировать.
func serveBlob(w http.ResponseWriter, r *http.Request, op, name, contentType string, size int64, body io.ReadCloser) {
	defer body.Close()
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if name != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")

	n, err := io.Copy(w, body)
	if err != nil {
		log := loggerFrom(r)
		log.Error(op+".stream_fail", slog.Int64("written", n), "err", err)
		if !responseAlreadyWritten(w) {
			writeError(w, http.StatusInternalServerError, "internal_error", "stream error")
		}
	}
}
