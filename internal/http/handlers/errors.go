package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"studio/internal/domain"
	"studio/internal/media"
	"studio/internal/providers/gemini"
	"studio/internal/studio"
)

// fail maps a pipeline error onto a status and writes the error body.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, body := classify(err)
	logger := zerolog.Ctx(r.Context())
	if code >= 500 {
		logger.Error().Err(err).Str("code", body.Code).Msg("request failed")
	} else {
		logger.Warn().Err(err).Str("code", body.Code).Msg("request rejected")
	}
	a.json(w, code, map[string]errorBody{"error": body})
}

func classify(err error) (int, errorBody) {
	var (
		rateErr       *studio.RateLimitError
		refusalErr    *studio.PolicyRefusalError
		extractErr    *studio.ExtractionError
		recomposeErr  *studio.RecompositionError
		modelRefusal  *gemini.RefusalError
		maxBytesError *http.MaxBytesError
		apiErr        genai.APIError
	)
	switch {
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests, errorBody{Code: "rate_limited", Message: rateErr.Error()}
	case gemini.IsRateLimit(err):
		return http.StatusTooManyRequests, errorBody{Code: "rate_limited", Message: "rate limit reached; wait about a minute and try again"}
	case errors.As(err, &extractErr):
		body := errorBody{Code: "extraction_failed", Message: extractErr.Error(), Details: map[string]any{"field": string(extractErr.Field)}}
		if errors.As(err, &refusalErr) {
			body.Details["finish_reason"] = refusalErr.FinishReason
			body.Details["blocked_categories"] = refusalErr.BlockedCategories
		}
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &recomposeErr):
		return http.StatusUnprocessableEntity, errorBody{Code: "recomposition_failed", Message: recomposeErr.Error(), Details: map[string]any{
			"finish_reason":      recomposeErr.FinishReason,
			"blocked_categories": recomposeErr.BlockedCategories,
		}}
	case errors.As(err, &refusalErr):
		return http.StatusUnprocessableEntity, errorBody{Code: "policy_refusal", Message: refusalErr.Error(), Details: map[string]any{
			"finish_reason":      refusalErr.FinishReason,
			"blocked_categories": refusalErr.BlockedCategories,
		}}
	case errors.As(err, &modelRefusal):
		return http.StatusUnprocessableEntity, errorBody{Code: "policy_refusal", Message: modelRefusal.Error(), Details: map[string]any{
			"finish_reason":      modelRefusal.FinishReason,
			"blocked_categories": modelRefusal.BlockedCategories,
		}}
	case errors.Is(err, media.ErrMediaDecode), errors.Is(err, media.ErrAudioDecode):
		return http.StatusBadRequest, errorBody{Code: "decode_failed", Message: err.Error()}
	case errors.As(err, &maxBytesError):
		return http.StatusRequestEntityTooLarge, errorBody{Code: "too_large", Message: "upload exceeds the size limit"}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, errorBody{Code: "bad_request", Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, studio.ErrRunNotFound):
		return http.StatusNotFound, errorBody{Code: "not_found", Message: err.Error()}
	case errors.Is(err, studio.ErrVideoPollTimeout):
		return http.StatusGatewayTimeout, errorBody{Code: "timeout", Message: err.Error()}
	case errors.Is(err, domain.ErrHostMisconfigured):
		return http.StatusBadGateway, errorBody{Code: "host_misconfigured", Message: err.Error()}
	case errors.Is(err, domain.ErrProviderFailure), errors.Is(err, gemini.ErrNoVideo), errors.As(err, &apiErr):
		return http.StatusBadGateway, errorBody{Code: "provider_failure", Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorBody{Code: "timeout", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal error"}
	}
}
