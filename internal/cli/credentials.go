package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"studio/internal/bootstrap"
	"studio/internal/infra/credentials"
)

var errNoDatabase = errors.New("DATABASE_URL is required to store credentials")

func newCredentialsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Store provider keys and asset host settings in the database",
	}
	cmd.AddCommand(
		newSetKeyCommand("set-gemini-key", credentials.ProviderGemini, "GEMINI_API_KEY"),
		newSetKeyCommand("set-openai-key", credentials.ProviderOpenAI, "OPENAI_API_KEY"),
		newSetAssetHostCommand(),
	)
	return cmd
}

// withCredentials opens the database for the duration of fn.
func withCredentials(cmd *cobra.Command, fn func(ctx context.Context, store *credentials.Store) error) error {
	cfg, logger, err := env(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	pool, store, err := bootstrap.ConnectDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if pool == nil {
		return errNoDatabase
	}
	defer pool.Close()
	return fn(ctx, store)
}

func newSetKeyCommand(use, provider, envVar string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [key]",
		Short: fmt.Sprintf("Store the %s API key", provider),
		Long: fmt.Sprintf("Store the %s API key. Without an argument the key is read from %s, "+
			"then from the first line of stdin.", provider, envVar),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := resolveKeyArg(args, os.Getenv(envVar), cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("%s API key: %w", provider, err)
			}
			return withCredentials(cmd, func(ctx context.Context, store *credentials.Store) error {
				var err error
				if provider == credentials.ProviderOpenAI {
					err = store.SetOpenAIAPIKey(ctx, key)
				} else {
					err = store.SetGeminiAPIKey(ctx, key)
				}
				if err != nil {
					return fmt.Errorf("persist %s api key: %w", provider, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s api key stored\n", provider)
				return nil
			})
		},
	}
}

func resolveKeyArg(args []string, fromEnv string, stdin io.Reader) (string, error) {
	if len(args) == 1 {
		if key := strings.TrimSpace(args[0]); key != "" {
			return key, nil
		}
	}
	if key := strings.TrimSpace(fromEnv); key != "" {
		return key, nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if key := strings.TrimSpace(line); key != "" {
		return key, nil
	}
	return "", errors.New("no key given")
}

func newSetAssetHostCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-asset-host",
		Short: "Store Cloudinary or COS settings used when ASSET_HOST is none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := assetHostFromFlags(cmd)
			if err != nil {
				return err
			}
			return withCredentials(cmd, func(ctx context.Context, store *credentials.Store) error {
				if err := store.SetAssetHost(ctx, settings); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s settings stored\n", settings.Provider)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.String("provider", credentials.ProviderCloudinary, "cloudinary or cos")
	f.String("cloud-name", "", "Cloudinary cloud name")
	f.String("preset", "", "Cloudinary unsigned upload preset")
	f.String("bucket-url", "", "COS bucket URL")
	f.String("secret-id", "", "COS secret id")
	f.String("secret-key", "", "COS secret key")
	return cmd
}

func assetHostFromFlags(cmd *cobra.Command) (credentials.AssetHostSettings, error) {
	f := cmd.Flags()
	provider, _ := f.GetString("provider")
	s := credentials.AssetHostSettings{Provider: strings.ToLower(strings.TrimSpace(provider))}
	switch s.Provider {
	case credentials.ProviderCloudinary:
		s.CloudName, _ = f.GetString("cloud-name")
		s.Secret, _ = f.GetString("preset")
	case credentials.ProviderCOS:
		s.BucketURL, _ = f.GetString("bucket-url")
		s.SecretID, _ = f.GetString("secret-id")
		s.Secret, _ = f.GetString("secret-key")
	default:
		return s, fmt.Errorf("unsupported asset host %q", provider)
	}
	return s, nil
}
