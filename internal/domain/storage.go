package domain

import (
	"context"
	"io"
)

// FileStorage moves import and export payloads between the engine and
// wherever the host keeps files.
type FileStorage interface {
	UploadFile(ctx context.Context, name string, r io.Reader) (string, error)
	DownloadURL(ctx context.Context, path string) (string, error)
}
