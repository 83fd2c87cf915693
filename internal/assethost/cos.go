package assethost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/tencentyun/cos-go-sdk-v5"

	"studio/internal/media"
	"studio/internal/storage"
)

type COSOptions struct {
	BucketURL string
	SecretID  string
	SecretKey string
	Prefix    string
	// Transport is wrapped by the signing transport; nil uses the default.
	Transport http.RoundTripper
}

// COS uploads into a Tencent Cloud Object Storage bucket.
type COS struct {
	client    *cos.Client
	bucketURL string
	prefix    string
	now       func() time.Time
}

const cosPutAttempts = 3

func NewCOS(opts COSOptions) (*COS, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.BucketURL), "/")
	if raw == "" || opts.SecretID == "" || opts.SecretKey == "" {
		return nil, errors.New("assethost: cos bucket url, secret id and secret key are required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("assethost: parse cos bucket url: %w", err)
	}
	client := cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{
		Timeout: 60 * time.Second,
		Transport: &cos.AuthorizationTransport{
			SecretID:  opts.SecretID,
			SecretKey: opts.SecretKey,
			Transport: opts.Transport,
		},
	})
	prefix := strings.Trim(opts.Prefix, "/")
	if prefix == "" {
		prefix = "studio"
	}
	return &COS{client: client, bucketURL: raw, prefix: prefix, now: time.Now}, nil
}

// Upload puts the image under <prefix>/<yyyy/mm/dd>/<ksuid>.<ext>. Failed
// puts are retried with a fresh reader.
func (c *COS) Upload(ctx context.Context, asset media.ImageAsset) (string, error) {
	if asset.Empty() {
		return "", errors.New("assethost: empty image")
	}
	key := path.Join(c.prefix, c.now().UTC().Format("2006/01/02"), ksuid.New().String()+storage.ExtensionFor(asset.MIMEType))
	opt := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{ContentType: asset.MIMEType},
	}
	var err error
	for attempt := 0; attempt < cosPutAttempts; attempt++ {
		if _, err = c.client.Object.Put(ctx, key, bytes.NewReader(asset.Data), opt); err == nil {
			return c.bucketURL + "/" + key, nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("assethost: cos put %s: %w", key, err)
}

var _ Uploader = (*COS)(nil)
