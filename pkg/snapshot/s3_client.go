package snapshot

import (
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
)

// UploadClient is the slice of the s3 API the archiver needs.
type UploadClient interface {
	manager.UploadAPIClient
}

// DownloadClient is the slice of the s3 API the bootstrap needs.
type DownloadClient interface {
	manager.DownloadAPIClient
}
