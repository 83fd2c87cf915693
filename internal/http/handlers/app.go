package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"studio/internal/history"
	"studio/internal/infra"
	"studio/internal/media"
	"studio/internal/providers/prompt"
	"studio/internal/studio"
)

type Ingestor interface {
	Ingest(ctx context.Context, path string, progress media.ProgressFunc) (*media.IngestionResult, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, result *media.IngestionResult) (*studio.VideoAnalysis, error)
}

type Extractor interface {
	Extract(ctx context.Context, character, concept media.ImageAsset) (*studio.ComponentSet, error)
}

type Recomposer interface {
	Recompose(ctx context.Context, sel studio.Selection, n int) (*studio.RecompositionResult, error)
}

type Editor interface {
	Analyze(ctx context.Context, image media.ImageAsset) (string, error)
	Edit(ctx context.Context, req studio.EditRequest, n int) (*studio.RecompositionResult, error)
	Magic(ctx context.Context, req studio.MagicRequest) (*studio.RecompositionResult, error)
	Restore(ctx context.Context, req studio.RestoreRequest) (media.ImageAsset, error)
	ProductShot(ctx context.Context, product media.ImageAsset, scene string, n int) (*studio.RecompositionResult, error)
	Travel(ctx context.Context, req studio.TravelRequest, n int) (*studio.RecompositionResult, error)
	Concept(ctx context.Context, character media.ImageAsset, concept string, n int) (*studio.RecompositionResult, error)
}

type ImageGenerator interface {
	GenerateImages(ctx context.Context, prompt string, count int, aspect string) ([]media.ImageAsset, error)
	GenerateBackground(ctx context.Context, prompt, aspect string) (media.ImageAsset, error)
}

type VideoGenerator interface {
	Generate(ctx context.Context, prompt string, image *media.ImageAsset) ([]byte, error)
}

type Describer interface {
	DescribePose(ctx context.Context, image media.ImageAsset) (string, error)
	Suggest(ctx context.Context, req prompt.SuggestRequest) ([]string, error)
}

// App holds the pipeline components the HTTP handlers call into.
type App struct {
	Logger         *infra.Logger
	Runs           *studio.RunRegistry
	Ingestor       Ingestor
	Analyzer       Analyzer
	Extractor      Extractor
	Recomposer     Recomposer
	Editor         Editor
	Images         ImageGenerator
	Videos         VideoGenerator
	Describer      Describer
	History        *history.Service
	UploadDir      string
	MaxUploadBytes int64
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]errorBody{"error": {Code: errCode, Message: message}})
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	limit := a.MaxUploadBytes
	if limit <= 0 {
		limit = 64 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}
