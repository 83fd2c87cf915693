package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubExecutor struct {
	token string
	props []byte
	err   error
	exec  struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return stubRow{token: s.token, props: s.props, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	props []byte
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 2 {
		return errors.New("unexpected dest count")
	}
	tokenPtr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid token dest")
	}
	propsPtr, ok := dest[1].(*[]byte)
	if !ok {
		return errors.New("invalid props dest")
	}
	*tokenPtr = r.token
	*propsPtr = r.props
	return nil
}

func TestGeminiAPIKey(t *testing.T) {
	store := NewStore(&stubExecutor{token: " abc123 "})
	key, err := store.GeminiAPIKey(context.Background())
	if err != nil {
		t.Fatalf("GeminiAPIKey error: %v", err)
	}
	if key != "abc123" {
		t.Fatalf("expected abc123, got %q", key)
	}
}

func TestGeminiAPIKey_NoRows(t *testing.T) {
	store := NewStore(&stubExecutor{err: pgx.ErrNoRows})
	key, err := store.GeminiAPIKey(context.Background())
	if err != nil {
		t.Fatalf("GeminiAPIKey error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestSetGeminiAPIKey(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	if err := store.SetGeminiAPIKey(context.Background(), "secret"); err != nil {
		t.Fatalf("SetGeminiAPIKey error: %v", err)
	}
	if len(exec.exec.args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[1].(string); !ok || v != "secret" {
		t.Fatalf("expected secret argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
	}
}

func TestSetOpenAIAPIKeyEmpty(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.SetOpenAIAPIKey(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestAssetHostRoundTrip(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	err := store.SetAssetHost(context.Background(), AssetHostSettings{
		Provider:  ProviderCloudinary,
		Secret:    " studio_unsigned ",
		CloudName: "demo",
	})
	if err != nil {
		t.Fatalf("SetAssetHost error: %v", err)
	}
	if exec.exec.args[0] != ProviderCloudinary || exec.exec.args[1] != "studio_unsigned" {
		t.Fatalf("unexpected args: %#v", exec.exec.args)
	}
	raw, ok := exec.exec.args[2].([]byte)
	if !ok {
		t.Fatalf("properties arg = %T, want []byte", exec.exec.args[2])
	}
	var props map[string]string
	if err := json.Unmarshal(raw, &props); err != nil {
		t.Fatalf("decode props: %v", err)
	}
	if props["cloud_name"] != "demo" {
		t.Fatalf("cloud_name = %q, want demo", props["cloud_name"])
	}

	loaded, err := NewStore(&stubExecutor{token: "studio_unsigned", props: raw}).AssetHost(context.Background(), ProviderCloudinary)
	if err != nil {
		t.Fatalf("AssetHost error: %v", err)
	}
	if loaded == nil || loaded.CloudName != "demo" || loaded.Secret != "studio_unsigned" {
		t.Fatalf("unexpected settings: %#v", loaded)
	}
}

func TestSetAssetHostRejectsUnknownProvider(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.SetAssetHost(context.Background(), AssetHostSettings{Provider: "s3", Secret: "x"}); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}
