package gemini

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrRateLimited   = errors.New("gemini: rate limited")
	ErrMissingAPIKey = errors.New("gemini: api key is required")
	ErrNoVideo       = errors.New("gemini: video operation finished without a video")
)

// The SDK surfaces HTTP failures as text ("Error 429, Message: ..., Status:
// RESOURCE_EXHAUSTED"), so throttling is recognised on the message.
var rateLimitPattern = regexp.MustCompile(`(?i)\b429\b|RESOURCE_EXHAUSTED`)

// IsRateLimit reports whether err is a throttling response from the API.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	return rateLimitPattern.MatchString(err.Error())
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsRateLimit(err) && !errors.Is(err, ErrRateLimited) {
		return fmt.Errorf("%w: %s: %v", ErrRateLimited, op, err)
	}
	return fmt.Errorf("gemini %s: %w", op, err)
}

// RefusalError is returned when a call that must produce an image returns
// none. FinishReason and BlockedCategories come from the candidate metadata.
type RefusalError struct {
	FinishReason      string
	BlockedCategories []string
	Text              string
}

func (e *RefusalError) Error() string {
	var sb strings.Builder
	sb.WriteString("model did not return an image")
	if e.FinishReason != "" {
		fmt.Fprintf(&sb, " (finishReason: %s)", e.FinishReason)
	}
	if len(e.BlockedCategories) > 0 {
		fmt.Fprintf(&sb, ". Blocked categories: %s", strings.Join(e.BlockedCategories, ", "))
	}
	text := strings.TrimSpace(e.Text)
	if text == "" {
		text = "No text response"
	}
	fmt.Fprintf(&sb, ". Response: %s", text)
	return sb.String()
}
