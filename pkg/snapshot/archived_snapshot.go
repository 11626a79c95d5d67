// Package snapshot archives the store file to durable storage and
// bootstraps fresh nodes from the latest archive.
package snapshot

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/segmentio/events/v2"
	"github.com/segmentio/stats/v4"

	"github.com/citygrid/stationstore/pkg/units"
	"github.com/citygrid/stationstore/pkg/utils"
)

type archivedSnapshot interface {
	Upload(ctx context.Context, path string) error
}

type localSnapshot struct {
	Path string
}

func (c *localSnapshot) Upload(ctx context.Context, path string) error {
	if err := utils.EnsureDirForFile(c.Path); err != nil {
		return errors.Wrap(err, "ensure snapshot dir exists")
	}
	fdst, err := os.OpenFile(c.Path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "opening destination file")
	}
	defer fdst.Close()
	fsrc, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return errors.Wrap(err, "opening src file")
	}
	defer fsrc.Close()
	_, err = io.Copy(fdst, fsrc)
	return errors.Wrap(err, "copying file")
}

// sendToS3Func sends the specified content to an s3 bucket
type sendToS3Func func(ctx context.Context, key string, bucket string, body io.Reader) error

type s3Snapshot struct {
	Bucket       string
	Key          string
	sendToS3Func sendToS3Func
	client       UploadClient
}

func (c *s3Snapshot) Upload(ctx context.Context, path string) error {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return errors.Wrap(err, "opening file")
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat store file")
	}
	size := stat.Size()
	key := strings.TrimPrefix(c.Key, "/")
	var reader io.Reader = bufio.NewReaderSize(f, 32*units.KILOBYTE)

	cs, err := getChecksum(path)
	if err != nil {
		return errors.Wrap(err, "generate file checksum")
	}

	var gpr *gzipCompressionReader
	if strings.HasSuffix(key, ".gz") {
		gpr = newGZIPCompressionReader(reader)
		reader = gpr
	}
	events.Log("Uploading %{file}s (%d bytes) to %{bucket}s/%{key}s", path, size, c.Bucket, key)

	start := time.Now()
	if err = c.sendToS3(ctx, key, c.Bucket, reader, cs); err != nil {
		return errors.Wrap(err, "send to s3")
	}
	stats.Observe("store-upload-time", time.Since(start), stats.T("compressed", isCompressed(gpr)))

	events.Log("Successfully uploaded %{file}s to %{bucket}s/%{key}s", path, c.Bucket, key)
	if gpr != nil {
		stats.Set("store-size-bytes-compressed", gpr.bytesRead)
		if size > 0 {
			ratio := 1 - (float64(gpr.bytesRead) / float64(size))
			stats.Set("s3-compression-ratio", ratio)
			events.Log("Compression reduced %d -> %d bytes (%0.2f %%)", size, gpr.bytesRead, ratio*100)
		}
	}
	return nil
}

func getChecksum(path string) (string, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return "", errors.Wrap(err, "opening file")
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrap(err, "hash snapshot")
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

func isCompressed(gpr *gzipCompressionReader) string {
	if gpr == nil {
		return "false"
	}
	return "true"
}

func (c *s3Snapshot) sendToS3(ctx context.Context, key string, bucket string, body io.Reader, cs string) error {
	if c.sendToS3Func != nil {
		return c.sendToS3Func(ctx, key, bucket, body)
	}

	client, err := c.getClient(ctx)
	if err != nil {
		return err
	}
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 16 * units.MEGABYTE
	})
	output, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   body,
		Metadata: map[string]string{
			"checksum":  cs,
			"upload-id": uuid.New().String(),
		},
	})
	if err != nil {
		return errors.Wrap(err, "upload with context")
	}
	events.Log("Wrote to S3 location: %s", output.Location)
	return nil
}

func (c *s3Snapshot) getClient(ctx context.Context) (UploadClient, error) {
	if c.client != nil {
		return c.client, nil
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	return s3.NewFromConfig(cfg), nil
}

func archivedSnapshotFromURL(URL string) (archivedSnapshot, error) {
	parsed, err := url.Parse(URL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing url")
	}
	switch parsed.Scheme {
	case "s3":
		events.Log("Using s3 destination for snapshots bucket=%v", parsed.Host)
		return &s3Snapshot{Bucket: parsed.Host, Key: parsed.Path}, nil
	case "file":
		events.Log("Using local FS destination for snapshots file=%v", parsed.Path)
		return &localSnapshot{parsed.Path}, nil
	default:
		return nil, errors.Errorf("unknown scheme %s", parsed.Scheme)
	}
}
