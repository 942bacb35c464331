package domain

import "context"

// BlobWriter stores whole objects in object storage. Implementations pick
// the upload strategy from the body size.
type BlobWriter interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}
