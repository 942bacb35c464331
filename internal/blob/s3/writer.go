package s3blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	// partSize is the S3 minimum multipart part size.
	partSize int64 = 5 * 1024 * 1024
	// multipartThreshold is the body size above which uploads go multipart.
	multipartThreshold = 8 * 1024 * 1024
)

// objectPutter is the slice of the S3 API the writer needs.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Writer implements domain.BlobWriter on one bucket. Small archive batches
// go out as a single PutObject; large ones through the upload manager.
type Writer struct {
	client   objectPutter
	uploader *manager.Uploader
	bucket   string
}

// NewWriter creates a writer for the client's bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{
		client: c.s3,
		uploader: manager.NewUploader(c.s3, func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
		bucket: c.bucket,
	}
}

// PutObject uploads body under key.
func (w *Writer) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(w.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	}

	if len(body) > multipartThreshold && w.uploader != nil {
		in.ContentLength = nil
		if _, err := w.uploader.Upload(ctx, in); err != nil {
			return fmt.Errorf("s3blob: multipart upload %s (%d bytes): %w", key, len(body), err)
		}
		return nil
	}

	if _, err := w.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", key, err)
	}
	return nil
}
