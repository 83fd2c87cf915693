// Package assethost uploads generated images to a cloud host and returns
// their public URLs.
package assethost

import (
	"context"
	"errors"

	"studio/internal/media"
)

// ErrPresetNotFound means the configured unsigned upload preset does not
// exist on the host. It is a configuration problem, not a transient one.
var ErrPresetNotFound = errors.New("assethost: upload preset not found")

// Uploader stores an image and returns the URL it is served from.
type Uploader interface {
	Upload(ctx context.Context, asset media.ImageAsset) (string, error)
}
