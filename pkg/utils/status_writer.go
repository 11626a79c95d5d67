package utils

import "net/http"

// StatusWriter wraps a ResponseWriter and records the status code and
// body length that were sent, for access logging.
type StatusWriter struct {
	http.ResponseWriter
	Status int
	Length int
}

func (w *StatusWriter) WriteHeader(status int) {
	w.Status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *StatusWriter) Write(b []byte) (int, error) {
	if w.Status == 0 {
		w.Status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.Length += n
	return n, err
}
