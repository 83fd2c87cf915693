package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"studio/internal/infra"
	"studio/internal/sqlinline"
)

const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderCloudinary = "cloudinary"
	ProviderCOS        = "cos"
)

// AssetHostSettings describes a persisted cloud asset host. For Cloudinary the
// secret is the unsigned upload preset; for COS it is the secret key.
type AssetHostSettings struct {
	Provider  string `json:"-"`
	Secret    string `json:"-"`
	CloudName string `json:"cloud_name,omitempty"`
	BucketURL string `json:"bucket_url,omitempty"`
	SecretID  string `json:"secret_id,omitempty"`
}

// Store persists provider credentials in the integration_tokens table so the
// service and CLI can share keys without redeploying environment files.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// EnsureSchema creates the integration_tokens table when absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.sql.Exec(ctx, sqlinline.QCreateIntegrationTokens)
	return err
}

func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	token, _, err := s.token(ctx, ProviderGemini)
	return token, err
}

func (s *Store) SetGeminiAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("gemini api key is required")
	}
	return s.upsert(ctx, ProviderGemini, key, nil)
}

func (s *Store) OpenAIAPIKey(ctx context.Context) (string, error) {
	token, _, err := s.token(ctx, ProviderOpenAI)
	return token, err
}

func (s *Store) SetOpenAIAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("openai api key is required")
	}
	return s.upsert(ctx, ProviderOpenAI, key, nil)
}

// AssetHost loads the settings for provider. A missing row yields nil settings
// and no error.
func (s *Store) AssetHost(ctx context.Context, provider string) (*AssetHostSettings, error) {
	token, props, err := s.token(ctx, provider)
	if err != nil || token == "" {
		return nil, err
	}
	settings := &AssetHostSettings{}
	if len(props) > 0 {
		if err := json.Unmarshal(props, settings); err != nil {
			return nil, fmt.Errorf("decode %s settings: %w", provider, err)
		}
	}
	settings.Provider = provider
	settings.Secret = token
	return settings, nil
}

func (s *Store) SetAssetHost(ctx context.Context, settings AssetHostSettings) error {
	settings.Secret = strings.TrimSpace(settings.Secret)
	switch settings.Provider {
	case ProviderCloudinary:
		if settings.Secret == "" || strings.TrimSpace(settings.CloudName) == "" {
			return errors.New("cloudinary cloud name and upload preset are required")
		}
	case ProviderCOS:
		if settings.Secret == "" || strings.TrimSpace(settings.BucketURL) == "" {
			return errors.New("cos bucket url and secret key are required")
		}
	default:
		return fmt.Errorf("unsupported asset host %q", settings.Provider)
	}
	props := map[string]any{}
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &props); err != nil {
		return err
	}
	return s.upsert(ctx, settings.Provider, settings.Secret, props)
}

func (s *Store) token(ctx context.Context, provider string) (string, []byte, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var (
		token string
		props []byte
	)
	if err := row.Scan(&token, &props); err != nil {
		if infra.IsNoRows(err) {
			return "", nil, nil
		}
		return "", nil, err
	}
	return strings.TrimSpace(token), props, nil
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
