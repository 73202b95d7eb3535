package contracts

import (
	"context"
	"io"
)

// BlobStore uploads attachment blobs to external object storage and
// returns the stable URL carried in the message's attachment reference.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, size int64, body io.Reader) (url string, err error)
}
