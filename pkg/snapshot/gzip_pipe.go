package snapshot

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"sync"
)

// gzipCompressionReader reads a delegate reader's bytes compressed as GZIP.
// It pumps the delegate through a gzip writer into an io.Pipe and serves
// reads from the pipe's read end. It never closes the delegate.
type gzipCompressionReader struct {
	reader     io.Reader
	pipeReader *io.PipeReader
	bytesRead  int // how many gzip bytes were transferred
	once       sync.Once
}

var _ io.Reader = (*gzipCompressionReader)(nil)

func newGZIPCompressionReader(reader io.Reader) *gzipCompressionReader {
	return &gzipCompressionReader{
		reader: reader,
	}
}

func (r *gzipCompressionReader) Read(p []byte) (n int, err error) {
	if r.reader == nil {
		return -1, errors.New("no reader specified")
	}
	r.once.Do(func() {
		var pw *io.PipeWriter
		r.pipeReader, pw = io.Pipe()
		gw := gzip.NewWriter(pw)
		go func() {
			pw.CloseWithError(func() error {
				_, err := io.Copy(gw, r.reader)
				if err != nil {
					return fmt.Errorf("copy to gzip writer: %w", err)
				}
				if err = gw.Close(); err != nil {
					return fmt.Errorf("close gzip writer: %w", err)
				}
				return nil
			}())
		}()
	})
	n, err = r.pipeReader.Read(p)
	if n > 0 {
		r.bytesRead += n
	}
	return n, err
}
