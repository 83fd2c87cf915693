package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"
	"time"

	"github.com/gen2brain/webp"
	"github.com/segmentio/ksuid"

	"studio/internal/infra"
	"studio/internal/media"
)

// EncodeWebP re-encodes a JPEG or PNG image as lossy WebP. Transparency is
// preserved.
func EncodeWebP(asset media.ImageAsset, quality int) (media.ImageAsset, error) {
	img, _, err := image.Decode(bytes.NewReader(asset.Data))
	if err != nil {
		return media.ImageAsset{}, fmt.Errorf("storage: decode %s: %w", asset.MIMEType, err)
	}
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, webp.Options{Quality: quality}); err != nil {
		return media.ImageAsset{}, fmt.Errorf("storage: encode webp: %w", err)
	}
	return media.ImageAsset{Data: buf.Bytes(), MIMEType: media.MIMEWebP}, nil
}

type ArchiverOptions struct {
	BaseURL string
	WebP    bool
	Quality int
	Logger  *infra.Logger
}

// Archiver writes media into a FileStore under date-partitioned keys and
// returns the public URL of each file.
type Archiver struct {
	store   *FileStore
	baseURL string
	webp    bool
	quality int
	now     func() time.Time
	logger  *infra.Logger
}

func NewArchiver(store *FileStore, opts ArchiverOptions) *Archiver {
	return &Archiver{
		store:   store,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		webp:    opts.WebP,
		quality: opts.Quality,
		now:     time.Now,
		logger:  infra.ComponentLogger(opts.Logger, "archiver"),
	}
}

// Upload stores an image and returns its URL. With WebP enabled the image is
// re-encoded first; if that fails the original bytes are kept.
func (a *Archiver) Upload(ctx context.Context, asset media.ImageAsset) (string, error) {
	if a.webp && asset.MIMEType != media.MIMEWebP {
		converted, err := EncodeWebP(asset, a.quality)
		if err != nil {
			a.logger.Warn().Err(err).Msg("webp conversion failed, archiving original")
		} else {
			asset = converted
		}
	}
	return a.Save(ctx, asset.Data, asset.MIMEType)
}

// Save stores raw bytes of the given MIME type.
func (a *Archiver) Save(ctx context.Context, data []byte, mimeType string) (string, error) {
	key := path.Join(a.now().UTC().Format("2006/01/02"), ksuid.New().String()+ExtensionFor(mimeType))
	key, err := a.store.Write(ctx, key, data)
	if err != nil {
		return "", err
	}
	return a.URL(key), nil
}

// URL maps a store key to its public URL.
func (a *Archiver) URL(key string) string {
	return a.baseURL + "/" + key
}

// KeyFor reverses URL. It reports false for URLs outside this archive.
func (a *Archiver) KeyFor(url string) (string, bool) {
	prefix := a.baseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

// Remove deletes the archived file behind url. URLs that do not belong to
// this archive are ignored.
func (a *Archiver) Remove(ctx context.Context, url string) error {
	key, ok := a.KeyFor(url)
	if !ok {
		return nil
	}
	return a.store.Delete(ctx, key)
}

// ExtensionFor returns the file extension used for mimeType.
func ExtensionFor(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	switch strings.TrimSpace(strings.ToLower(base)) {
	case media.MIMEJPEG:
		return ".jpg"
	case media.MIMEPNG:
		return ".png"
	case media.MIMEWebP:
		return ".webp"
	case media.MIMEMP4:
		return ".mp4"
	case "text/plain":
		return ".txt"
	default:
		return ".bin"
	}
}
