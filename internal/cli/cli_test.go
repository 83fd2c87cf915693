package cli

import (
	"errors"
	"strings"
	"testing"

	"studio/internal/infra/credentials"
)

func TestRootCommandTree(t *testing.T) {
	root := NewRootCommand()
	for _, path := range [][]string{
		{"ingest"},
		{"extract"},
		{"recompose"},
		{"video", "generate"},
		{"images", "generate"},
		{"pose"},
		{"credentials", "set-gemini-key"},
		{"credentials", "set-openai-key"},
		{"credentials", "set-asset-host"},
		{"history", "list"},
		{"history", "prompts"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("command %v not found: %v", path, err)
		}
	}
}

func TestResolveKeyArg(t *testing.T) {
	cases := []struct {
		name  string
		args  []string
		env   string
		stdin string
		want  string
	}{
		{"argument wins", []string{" arg-key "}, "env-key", "stdin-key\n", "arg-key"},
		{"environment", nil, "env-key", "stdin-key\n", "env-key"},
		{"stdin", nil, "", "stdin-key\nignored\n", "stdin-key"},
		{"stdin without newline", nil, "", "stdin-key", "stdin-key"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveKeyArg(tc.args, tc.env, strings.NewReader(tc.stdin))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
	if _, err := resolveKeyArg(nil, "", strings.NewReader("  \n")); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestAssetHostFromFlags(t *testing.T) {
	cmd := newSetAssetHostCommand()
	if err := cmd.ParseFlags([]string{"--provider", "COS", "--bucket-url", "https://b.cos.example.com", "--secret-id", "id", "--secret-key", "key"}); err != nil {
		t.Fatal(err)
	}
	s, err := assetHostFromFlags(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if s.Provider != credentials.ProviderCOS || s.BucketURL != "https://b.cos.example.com" || s.SecretID != "id" || s.Secret != "key" {
		t.Fatalf("unexpected settings: %+v", s)
	}

	bad := newSetAssetHostCommand()
	if err := bad.ParseFlags([]string{"--provider", "s3"}); err != nil {
		t.Fatal(err)
	}
	if _, err := assetHostFromFlags(bad); err == nil {
		t.Fatal("expected unsupported provider error")
	}
}

func TestCredentialsRequireDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GEMINI_API_KEY", "")
	root := NewRootCommand()
	root.SetArgs([]string{"credentials", "set-gemini-key", "abc"})
	var out strings.Builder
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected database error, got %v", err)
	}
}

func TestHistoryRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	for _, sub := range []string{"list", "clear", "prompts"} {
		root := NewRootCommand()
		root.SetArgs([]string{"history", sub})
		var out strings.Builder
		root.SetOut(&out)
		root.SetErr(&out)
		if err := root.Execute(); !errors.Is(err, errHistoryNeedsDatabase) {
			t.Fatalf("history %s: expected errHistoryNeedsDatabase, got %v", sub, err)
		}
	}
}
