package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/segmentio/errors-go"
	"github.com/stretchr/testify/require"

	"github.com/citygrid/stationstore/pkg/errs"
)

func TestGZIPPipeReader(t *testing.T) {
	input := "hello world"
	var reader io.Reader = strings.NewReader(input)
	reader = newGZIPCompressionReader(reader)
	deflated, err := io.ReadAll(reader)
	require.NoError(t, err)

	reader, err = gzip.NewReader(bytes.NewReader(deflated))
	require.NoError(t, err)
	inflated, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.EqualValues(t, input, string(inflated))
}

type errReader struct {
	err error
}

func (r *errReader) Read(p []byte) (int, error) {
	return 0, r.err
}

func TestGZIPPipeReaderErr(t *testing.T) {
	readErr := errors.New("read failed")
	reader := newGZIPCompressionReader(&errReader{err: readErr})
	_, err := io.ReadAll(reader)
	require.Error(t, err)
	require.Contains(t, err.Error(), "read failed")
}

func TestArchivedSnapshotFromURL(t *testing.T) {
	snap, err := archivedSnapshotFromURL("s3://some-bucket/snapshots/store.db.gz")
	require.NoError(t, err)
	s3snap, ok := snap.(*s3Snapshot)
	require.True(t, ok)
	require.Equal(t, "some-bucket", s3snap.Bucket)
	require.Equal(t, "/snapshots/store.db.gz", s3snap.Key)

	snap, err = archivedSnapshotFromURL("file:///var/spool/store.db")
	require.NoError(t, err)
	local, ok := snap.(*localSnapshot)
	require.True(t, ok)
	require.Equal(t, "/var/spool/store.db", local.Path)

	_, err = archivedSnapshotFromURL("ftp://nope")
	require.Error(t, err)
}

func TestLocalSnapshotUpload(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "store.db")
	require.NoError(t, os.WriteFile(src, []byte("store content"), 0644))

	dst := filepath.Join(dir, "archive", "store.db")
	snap := &localSnapshot{Path: dst}
	require.NoError(t, snap.Upload(context.Background(), src))

	copied, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "store content", string(copied))
}

func TestS3SnapshotUploadCompresses(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "store.db")
	require.NoError(t, os.WriteFile(src, []byte("store content"), 0644))

	var uploaded []byte
	snap := &s3Snapshot{
		Bucket: "bucket",
		Key:    "/snapshots/store.db.gz",
		sendToS3Func: func(ctx context.Context, key, bucket string, body io.Reader) error {
			require.Equal(t, "snapshots/store.db.gz", key)
			var err error
			uploaded, err = io.ReadAll(body)
			return err
		},
	}
	require.NoError(t, snap.Upload(context.Background(), src))

	gz, err := gzip.NewReader(bytes.NewReader(uploaded))
	require.NoError(t, err)
	inflated, err := io.ReadAll(gz)
	require.NoError(t, err)
	require.Equal(t, "store content", string(inflated))
}

type fakeGetObjectClient struct {
	err error
}

func (c *fakeGetObjectClient) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, c.err
}

func TestS3DownloaderNotFound(t *testing.T) {
	noSuchKey := &smithy.GenericAPIError{Code: "NoSuchKey", Message: "the key does not exist"}

	d := &S3Downloader{
		Bucket:              "bucket",
		Key:                 "snapshots/store.db",
		Client:              &fakeGetObjectClient{err: noSuchKey},
		StartOverOnNotFound: true,
	}
	_, err := d.DownloadTo(io.Discard)
	require.Error(t, err)
	require.True(t, errors.Is(errs.ErrTypePermanent, err))

	// without StartOverOnNotFound a missing key is retried like any error
	d.StartOverOnNotFound = false
	_, err = d.DownloadTo(io.Discard)
	require.Error(t, err)
	require.True(t, errors.Is(errs.ErrTypeTemporary, err))
}

type fakeDownloader struct {
	res   []downloadResult
	calls int
}

type downloadResult struct {
	content string
	err     error
}

func (d *fakeDownloader) DownloadTo(w io.Writer) (int64, error) {
	res := d.res[d.calls]
	d.calls++
	if res.err != nil {
		return -1, res.err
	}
	n, err := io.Copy(w, strings.NewReader(res.content))
	return n, err
}

func TestBootstrap(t *testing.T) {
	const content = "store content"
	for _, test := range []struct {
		name    string
		dl      *fakeDownloader
		wantErr bool
		file    string // expected file content, empty means no file
	}{
		{
			name: "success",
			dl:   &fakeDownloader{res: []downloadResult{{content: content}}},
			file: content,
		},
		{
			name: "temporary then success",
			dl: &fakeDownloader{res: []downloadResult{
				{err: errors.WithTypes(errors.New("transient"), errs.ErrTypeTemporary)},
				{content: content},
			}},
			file: content,
		},
		{
			name: "permanent starts fresh",
			dl: &fakeDownloader{res: []downloadResult{
				{err: errors.WithTypes(errors.New("no such key"), errs.ErrTypePermanent)},
			}},
		},
		{
			name:    "generic error",
			dl:      &fakeDownloader{res: []downloadResult{{err: errors.New("boom")}}},
			wantErr: true,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "store.db")
			err := Bootstrap(BootstrapConfig{
				URL:        "s3://bucket/key",
				Path:       path,
				downloadTo: test.dl,
				retryDelay: time.Millisecond,
			})
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			got, readErr := os.ReadFile(path)
			if test.file == "" {
				require.True(t, os.IsNotExist(readErr))
				return
			}
			require.NoError(t, readErr)
			require.Equal(t, test.file, string(got))
		})
	}
}

func TestBootstrapSkipsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	require.NoError(t, os.WriteFile(path, []byte("already here"), 0644))
	dl := &fakeDownloader{res: []downloadResult{{content: "new content"}}}
	require.NoError(t, Bootstrap(BootstrapConfig{URL: "s3://bucket/key", Path: path, downloadTo: dl}))
	require.Zero(t, dl.calls)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "already here", string(got))
}

func TestBootstrapLocalFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "archive.db")
	require.NoError(t, os.WriteFile(src, []byte("archived"), 0644))
	dst := filepath.Join(dir, "store.db")
	require.NoError(t, Bootstrap(BootstrapConfig{URL: "file://" + src, Path: dst}))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "archived", string(got))
}
