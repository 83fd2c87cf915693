package studio

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"studio/internal/providers/gemini"
)

var (
	ErrVideoPollTimeout  = errors.New("video generation did not finish before the poll timeout")
	ErrInvalidTransition = errors.New("invalid run state transition")
	ErrRunNotFound       = errors.New("run not found")
)

// RateLimitError is returned once a call has used every retry the policy
// allows and the API is still throttling.
type RateLimitError struct {
	Label    string
	Attempts int
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit reached for %s after %d attempts; wait about a minute and try again", e.Label, e.Attempts)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// PolicyRefusalError is an image refusal that no fallback recovered.
type PolicyRefusalError struct {
	FinishReason      string
	BlockedCategories []string
	Err               error
}

func (e *PolicyRefusalError) Error() string {
	msg := "model refused to return an image"
	if e.FinishReason != "" {
		msg += " (finishReason: " + e.FinishReason + ")"
	}
	if len(e.BlockedCategories) > 0 {
		msg += ". Blocked categories: " + strings.Join(e.BlockedCategories, ", ")
	}
	return msg
}

func (e *PolicyRefusalError) Unwrap() error { return e.Err }

// ExtractionError names the component field that failed an extraction.
type ExtractionError struct {
	Field Field
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("component extraction failed at %s: %v", e.Field, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// VariantFailure records one failed recomposition call.
type VariantFailure struct {
	Variant int
	Err     error
}

// RecompositionError is returned when no variant of a multi-variant image
// call produced an image. FinishReason and BlockedCategories describe the
// first failure. Op names the call and defaults to "recomposition".
type RecompositionError struct {
	Op                string
	Requested         int
	Failures          []VariantFailure
	FinishReason      string
	BlockedCategories []string
}

func (e *RecompositionError) Error() string {
	op := e.Op
	if op == "" {
		op = "recomposition"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s failed: %d of %d variants returned no image", op, len(e.Failures), e.Requested)
	if e.FinishReason != "" {
		fmt.Fprintf(&sb, " (finishReason: %s)", e.FinishReason)
	}
	if len(e.BlockedCategories) > 0 {
		fmt.Fprintf(&sb, ". Blocked categories: %s. Adjust the instruction or the input images", strings.Join(e.BlockedCategories, ", "))
	}
	if len(e.Failures) > 0 && e.Failures[0].Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Failures[0].Err)
	}
	return sb.String()
}

func (e *RecompositionError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[0].Err
}

var fallbackFinishReasons = map[string]bool{
	"IMAGE_SAFETY":       true,
	"IMAGE_OTHER":        true,
	"SAFETY":             true,
	"PROHIBITED_CONTENT": true,
	"NO_CANDIDATES":      true,
	"NO_IMAGES":          true,
	"STOP":               true,
	"":                   true,
}

var fallbackTextPattern = regexp.MustCompile(`(?i)finishReason:\s*IMAGE_(SAFETY|OTHER)`)

// IsPolicyFallbackTrigger reports whether err is a content-policy style
// refusal for which a softer instruction is worth trying. A refusal that
// finished normally but carried no image counts as well. Errors known only
// by their text are matched on the finish reason they print.
func IsPolicyFallbackTrigger(err error) bool {
	if err == nil || gemini.IsRateLimit(err) {
		return false
	}
	var refusal *gemini.RefusalError
	if errors.As(err, &refusal) {
		return fallbackFinishReasons[strings.ToUpper(refusal.FinishReason)]
	}
	return fallbackTextPattern.MatchString(err.Error())
}

func refusalDetails(err error) (string, []string) {
	var refusal *gemini.RefusalError
	if errors.As(err, &refusal) {
		return refusal.FinishReason, refusal.BlockedCategories
	}
	var policy *PolicyRefusalError
	if errors.As(err, &policy) {
		return policy.FinishReason, policy.BlockedCategories
	}
	return "", nil
}

// asPolicyRefusal wraps an unrecovered model refusal so callers can match it
// without importing the provider package.
func asPolicyRefusal(err error) error {
	var refusal *gemini.RefusalError
	if !errors.As(err, &refusal) {
		return err
	}
	var policy *PolicyRefusalError
	if errors.As(err, &policy) {
		return err
	}
	return &PolicyRefusalError{FinishReason: refusal.FinishReason, BlockedCategories: refusal.BlockedCategories, Err: err}
}
