package assethost

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"

	"studio/internal/media"
)

type CloudinaryOptions struct {
	CloudName    string
	UploadPreset string
	// UploadPrefix overrides https://api.cloudinary.com.
	UploadPrefix string
}

// Cloudinary uploads through an unsigned upload preset.
type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	preset string
}

func NewCloudinary(opts CloudinaryOptions) (*Cloudinary, error) {
	cloud := strings.TrimSpace(opts.CloudName)
	preset := strings.TrimSpace(opts.UploadPreset)
	if cloud == "" || preset == "" {
		return nil, errors.New("assethost: cloudinary cloud name and upload preset are required")
	}
	// Unsigned uploads need no API key or secret.
	conf, err := config.NewFromParams(cloud, "", "")
	if err != nil {
		return nil, fmt.Errorf("assethost: cloudinary config: %w", err)
	}
	if prefix := strings.TrimRight(opts.UploadPrefix, "/"); prefix != "" {
		conf.API.UploadPrefix = prefix
	}
	cld, err := cloudinary.NewFromConfiguration(*conf)
	if err != nil {
		return nil, fmt.Errorf("assethost: cloudinary client: %w", err)
	}
	return &Cloudinary{cld: cld, preset: preset}, nil
}

// Upload sends the image as a base64 data URI and returns its secure URL.
func (c *Cloudinary) Upload(ctx context.Context, asset media.ImageAsset) (string, error) {
	if asset.Empty() {
		return "", errors.New("assethost: empty image")
	}
	res, err := c.cld.Upload.UnsignedUpload(ctx, "data:"+asset.MIMEType+";base64,"+asset.Base64(), c.preset, uploader.UploadParams{})
	if err != nil {
		return "", cloudinaryError(err.Error())
	}
	if msg := res.Error.Message; msg != "" {
		return "", cloudinaryError(msg)
	}
	if res.SecureURL == "" {
		return "", errors.New("assethost: cloudinary response without secure_url")
	}
	return res.SecureURL, nil
}

func cloudinaryError(msg string) error {
	if strings.Contains(strings.ToLower(msg), "upload preset not found") {
		return fmt.Errorf("%w: %s", ErrPresetNotFound, msg)
	}
	return fmt.Errorf("assethost: cloudinary upload: %s", msg)
}

var _ Uploader = (*Cloudinary)(nil)
