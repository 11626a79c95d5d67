package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	stderrors "errors"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/segmentio/errors-go"
	"github.com/segmentio/events/v2"
	"github.com/segmentio/stats/v4"

	"github.com/citygrid/stationstore/pkg/errs"
	"github.com/citygrid/stationstore/pkg/units"
)

type downloadTo interface {
	DownloadTo(w io.Writer) (int64, error)
}

// S3Downloader fetches a store snapshot from s3, inflating it when the key
// ends in .gz.
type S3Downloader struct {
	Region              string // optional
	Bucket              string
	Key                 string
	Client              DownloadClient
	StartOverOnNotFound bool // whether a missing snapshot means "start fresh"
}

func (d *S3Downloader) DownloadTo(w io.Writer) (n int64, err error) {
	ctx := context.Background()
	client, err := d.getClient(ctx)
	if err != nil {
		return -1, err
	}
	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = 64 * units.MEGABYTE
		d.Concurrency = 5
	})
	start := time.Now()
	defer func() {
		stats.Observe("snapshot_download_time", time.Since(start))
	}()
	buffer := manager.NewWriteAtBuffer([]byte{})
	compressedSize, err := downloader.Download(ctx, buffer, &s3.GetObjectInput{
		Bucket: aws.String(d.Bucket),
		Key:    aws.String(d.Key),
	})
	if err != nil {
		if d.StartOverOnNotFound && isS3NotFound(err) {
			// don't bother retrying. we'll start with a fresh store.
			return -1, errors.WithTypes(errors.Wrap(err, "get s3 data"), errs.ErrTypePermanent)
		}
		// retry
		return -1, errors.WithTypes(errors.Wrap(err, "get s3 data"), errs.ErrTypeTemporary)
	}
	var reader io.Reader = bytes.NewReader(buffer.Bytes())
	if strings.HasSuffix(d.Key, ".gz") {
		reader, err = gzip.NewReader(reader)
		if err != nil {
			return n, errors.Wrap(err, "create gzip reader")
		}
	}
	n, err = io.Copy(w, reader)
	if err != nil {
		return n, errors.Wrap(err, "copy from s3 to writer")
	}
	events.Log("Store inflated %d -> %d bytes", compressedSize, n)
	return
}

// isS3NotFound reports whether err is the service telling us the snapshot
// does not exist (NoSuchKey from GetObject, NotFound from HeadObject).
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if !stderrors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

func (d *S3Downloader) getClient(ctx context.Context) (DownloadClient, error) {
	if d.Client != nil {
		return d.Client, nil
	}
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(d.Region), // empty string means region is ignored
	)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	return s3.NewFromConfig(cfg), nil
}

type localDownloader struct {
	Path string
}

func (d *localDownloader) DownloadTo(w io.Writer) (int64, error) {
	f, err := os.Open(d.Path)
	if err != nil {
		return -1, errors.WithTypes(errors.Wrap(err, "open local snapshot"), errs.ErrTypePermanent)
	}
	defer f.Close()
	var reader io.Reader = f
	if strings.HasSuffix(d.Path, ".gz") {
		reader, err = gzip.NewReader(reader)
		if err != nil {
			return -1, errors.Wrap(err, "create gzip reader")
		}
	}
	return io.Copy(w, reader)
}

type memoryDownloader struct {
	Content []byte
}

func (d *memoryDownloader) DownloadTo(w io.Writer) (int64, error) {
	return io.Copy(w, bytes.NewReader(d.Content))
}

// BootstrapConfig configures a one-shot store download.
type BootstrapConfig struct {
	URL  string
	Path string
	// Region is the optional s3 region.
	Region string
	// StartOverOnNotFound treats a missing snapshot as success so a new
	// store can be seeded from scratch.
	StartOverOnNotFound bool

	downloadTo downloadTo    // for testing
	retryDelay time.Duration // for testing
}

// Bootstrap downloads a store snapshot to cfg.Path unless one already
// exists there. The download lands in a temp file first so a partial fetch
// never looks like a store.
func Bootstrap(cfg BootstrapConfig) error {
	if _, err := os.Stat(cfg.Path); err == nil {
		events.Log("Store file %{file}s exists, skipping bootstrap.", cfg.Path)
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, "stat store path")
	}

	shortURL := cfg.URL
	if len(shortURL) > 256 {
		shortURL = shortURL[:256]
	}
	events.Log("Bootstrap: %{url}s (region:%{region}q) to %{path}s", shortURL, cfg.Region, cfg.Path)

	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return err
	}

	var dler downloadTo
	switch scheme := strings.ToLower(parsed.Scheme); {
	case cfg.downloadTo != nil:
		// allow a test to mock the downloader
		dler = cfg.downloadTo
	case scheme == "s3":
		dler = &S3Downloader{
			Region:              cfg.Region,
			Bucket:              parsed.Host,
			Key:                 strings.TrimPrefix(parsed.Path, "/"),
			StartOverOnNotFound: cfg.StartOverOnNotFound,
		}
	case scheme == "file":
		dler = &localDownloader{Path: parsed.Path}
	case scheme == "data":
		decoded, err := base64.URLEncoding.DecodeString(parsed.Opaque)
		if err != nil {
			return err
		}
		dler = &memoryDownloader{Content: decoded}
	default:
		return errors.Errorf("unsupported scheme '%s' for bootstrap URL '%s'", scheme, cfg.URL)
	}

	tmpPath := cfg.Path + ".tmp"
	defer os.RemoveAll(tmpPath)

	downloadSnapshot := func() (int64, error) {
		f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		return dler.DownloadTo(f)
	}

	incrError := func(typ string) {
		errs.Incr("snapshot_download_errors", stats.T("type", typ))
	}
	maxAttempts := 5
	for maxAttempts > 0 {
		maxAttempts--
		var bytes int64
		bytes, err = downloadSnapshot()
		switch {
		case err == nil:
			if err = os.Rename(tmpPath, cfg.Path); err != nil {
				return err
			}
			events.Log("Bootstrap: Downloaded %{bytes}d bytes", bytes)
			return nil
		case errors.Is(errs.ErrTypeTemporary, err):
			incrError("temporary")
			events.Log("Temporary error trying to download snapshot: %{error}s", err)
			delay := cfg.retryDelay
			if delay == 0 {
				delay = time.Second
			}
			events.Log("Retrying in %{delay}s", delay)
			time.Sleep(delay)
		case errors.Is(errs.ErrTypePermanent, err):
			incrError("permanent")
			events.Log("Could not download snapshot: %{error}s", err)
			events.Log("Starting with a new store")
			return nil
		default:
			incrError("generic")
			return err
		}
	}
	return errors.Errorf("download of store snapshot failed after max attempts reached: %s", err)
}
