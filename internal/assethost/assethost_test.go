package assethost

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"studio/internal/media"
)

var testImage = media.ImageAsset{Data: []byte("png-bytes"), MIMEType: media.MIMEPNG}

func TestCloudinaryUpload(t *testing.T) {
	var gotPath, gotFile, gotPreset string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFile = r.FormValue("file")
		gotPreset = r.FormValue("upload_preset")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"secure_url":"https://res.cloudinary.com/demo/image/upload/v1/abc.png"}`)
	}))
	defer srv.Close()

	c, err := NewCloudinary(CloudinaryOptions{CloudName: "demo", UploadPreset: "unsigned", UploadPrefix: srv.URL})
	if err != nil {
		t.Fatalf("NewCloudinary error: %v", err)
	}
	url, err := c.Upload(context.Background(), testImage)
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if url != "https://res.cloudinary.com/demo/image/upload/v1/abc.png" {
		t.Fatalf("url = %q", url)
	}
	if !strings.HasPrefix(gotPath, "/v1_1/demo/") || !strings.HasSuffix(gotPath, "/upload") {
		t.Fatalf("path = %q", gotPath)
	}
	if gotFile != "data:image/png;base64,"+testImage.Base64() || gotPreset != "unsigned" {
		t.Fatalf("file = %q preset = %q", gotFile, gotPreset)
	}
}

func TestCloudinaryPresetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"Upload preset not found"}}`)
	}))
	defer srv.Close()

	c, _ := NewCloudinary(CloudinaryOptions{CloudName: "demo", UploadPreset: "missing", UploadPrefix: srv.URL})
	_, err := c.Upload(context.Background(), testImage)
	if !errors.Is(err, ErrPresetNotFound) {
		t.Fatalf("expected ErrPresetNotFound, got %v", err)
	}
}

func TestCloudinaryOtherError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `oops`)
	}))
	defer srv.Close()

	c, _ := NewCloudinary(CloudinaryOptions{CloudName: "demo", UploadPreset: "p", UploadPrefix: srv.URL})
	_, err := c.Upload(context.Background(), testImage)
	if err == nil || errors.Is(err, ErrPresetNotFound) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewCloudinaryRequiresSettings(t *testing.T) {
	if _, err := NewCloudinary(CloudinaryOptions{CloudName: "demo"}); err == nil {
		t.Fatal("expected error without preset")
	}
}

func TestCOSUpload(t *testing.T) {
	var method, path, contentType, auth string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		contentType = r.Header.Get("Content-Type")
		auth = r.Header.Get("Authorization")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewCOS(COSOptions{BucketURL: srv.URL, SecretID: "id", SecretKey: "key"})
	if err != nil {
		t.Fatalf("NewCOS error: %v", err)
	}
	url, err := c.Upload(context.Background(), testImage)
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if method != http.MethodPut || !strings.HasPrefix(path, "/studio/") || !strings.HasSuffix(path, ".png") {
		t.Fatalf("request = %s %s", method, path)
	}
	if url != srv.URL+path {
		t.Fatalf("url = %q, want %q", url, srv.URL+path)
	}
	if contentType != media.MIMEPNG || string(body) != "png-bytes" {
		t.Fatalf("content-type = %q body = %q", contentType, body)
	}
	if auth == "" {
		t.Fatal("request should be signed")
	}
}

func TestNewCOSRequiresCredentials(t *testing.T) {
	if _, err := NewCOS(COSOptions{BucketURL: "https://b.cos.ap-guangzhou.myqcloud.com"}); err == nil {
		t.Fatal("expected error without credentials")
	}
}
