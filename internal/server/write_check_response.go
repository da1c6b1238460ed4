package server

import "net/http"

type writeCheckResponseWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *writeCheckResponseWriter) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.ResponseWriter.WriteHeader(statusCode)
	}
}

func (w *writeCheckResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *writeCheckResponseWriter) HeaderWritten() bool { return w.wroteHeader }

// headerChecker реализуют все обёртки ResponseWriter этого пакета.
type headerChecker interface {
	HeaderWritten() bool
}

// responseAlreadyWritten: после начала стриминга ответить ошибкой уже нельзя.
func responseAlreadyWritten(w http.ResponseWriter) bool {
	if wc, ok := w.(headerChecker); ok {
		return wc.HeaderWritten()
	}
	return false
}

func WrapWriteCheck(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wc := &writeCheckResponseWriter{ResponseWriter: w}
		next.ServeHTTP(wc, r)
	})
}
