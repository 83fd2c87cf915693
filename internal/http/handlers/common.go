package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/history"
	"studio/internal/media"
)

func dataURI(a media.ImageAsset) string {
	return fmt.Sprintf("data:%s;base64,%s", a.MIMEType, a.Base64())
}

func dataURIs(assets []media.ImageAsset) []string {
	out := make([]string, 0, len(assets))
	for _, a := range assets {
		out = append(out, dataURI(a))
	}
	return out
}

// decodeImage reads a base64 or data URI image field.
func decodeImage(field, payload string) (media.ImageAsset, error) {
	asset, err := media.DecodeImageAsset(payload, media.MIMEPNG)
	if err != nil {
		return media.ImageAsset{}, fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, field, err)
	}
	return asset, nil
}

type historySummary struct {
	Items   []domain.HistoryItem `json:"items"`
	Skipped []history.Skipped    `json:"skipped,omitempty"`
	Warning string               `json:"warning,omitempty"`
}

// record stores outputs in history. Failures never fail the request that
// produced the outputs; they are reported in the summary instead.
func (a *App) record(ctx context.Context, mode, prompt string, outputs []history.Output) *historySummary {
	if a.History == nil || len(outputs) == 0 {
		return nil
	}
	res, err := a.History.Record(ctx, history.RecordRequest{Mode: mode, Prompt: prompt, Outputs: outputs})
	summary := &historySummary{}
	if res != nil {
		summary.Items = res.Items
		summary.Skipped = res.Skipped
	}
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("mode", mode).Msg("history not fully recorded")
		if errors.Is(err, domain.ErrHostMisconfigured) {
			summary.Warning = "asset host upload preset not found; check the host settings"
		} else {
			summary.Warning = "history could not be saved"
		}
	}
	return summary
}

func imageOutputs(assets []media.ImageAsset) []history.Output {
	out := make([]history.Output, 0, len(assets))
	for _, a := range assets {
		out = append(out, history.ImageOutput(a))
	}
	return out
}

func wantsFormat(r *http.Request, format string) bool {
	return r.URL.Query().Get("format") == format
}
