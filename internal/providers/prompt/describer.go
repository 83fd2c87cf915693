package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studio/internal/infra"
	"studio/internal/media"
)

// Generator is a text model that can optionally look at images.
// *gemini.Client and *OpenAIGenerator satisfy it.
type Generator interface {
	GenerateText(ctx context.Context, instruction string, images ...media.ImageAsset) (string, error)
}

const (
	translateInstruction = "You are a translation assistant. Translate the user-provided text into English. " +
		"Return ONLY the translated English text, with no explanations, formatting or conversational text.\n\n"

	poseInstruction = "Describe the pose, action and emotion of the person in this image as one short, descriptive " +
		"phrase suitable for an image generation prompt. For example: 'smiling and holding a bouquet of flowers', " +
		"'confidently walking towards the camera', 'pensively looking into the distance'. Return only the phrase."

	suggestInstruction = "Based on the following user input for a %q generation task, generate %d concise, creative " +
		"and diverse prompt suggestions in %s. The user input is: %q. Return ONLY a JSON array of strings. " +
		"Do not include any other text or markdown."

	suggestVideoInstruction = "Based on the following user input for a video generation task, generate %d creative and " +
		"detailed prompts in %s. The user's idea is: %q. Each prompt should describe a short video scene, including " +
		"camera movement, subject action and atmosphere. Return ONLY a JSON array of strings."
)

var ErrEmptyDescription = errors.New("prompt: model returned an empty description")

// Describer turns user text and reference images into English prompt text.
type Describer struct {
	gen      Generator
	language string
	logger   *infra.Logger
}

type DescriberOptions struct {
	// SuggestionLanguage is the language suggestions are written in.
	SuggestionLanguage string
	Logger             *infra.Logger
}

func NewDescriber(gen Generator, opts DescriberOptions) *Describer {
	return &Describer{
		gen:      gen,
		language: firstNonBlank(opts.SuggestionLanguage, "English"),
		logger:   infra.ComponentLogger(opts.Logger, "describer"),
	}
}

// Translate returns text in English. ASCII input is returned unchanged and
// without a model call; on any model failure the original text is returned.
func (d *Describer) Translate(ctx context.Context, text string) string {
	if IsASCII(text) {
		return text
	}
	out, err := d.gen.GenerateText(ctx, translateInstruction+text)
	if err != nil {
		d.logger.Warn().Err(err).Msg("translation failed, using original prompt")
		return text
	}
	out = cleanModelText(out)
	if out == "" {
		return text
	}
	return out
}

// DescribePose summarises the pose and emotion of the person in image.
func (d *Describer) DescribePose(ctx context.Context, image media.ImageAsset) (string, error) {
	if image.Empty() {
		return "", fmt.Errorf("describe pose: image is required")
	}
	out, err := d.gen.GenerateText(ctx, poseInstruction, image)
	if err != nil {
		return "", fmt.Errorf("describe pose: %w", err)
	}
	out = cleanModelText(out)
	if out == "" {
		return "", ErrEmptyDescription
	}
	return out, nil
}

// SuggestRequest asks for alternative prompts for a generation mode.
type SuggestRequest struct {
	Mode   string
	Prompt string
	Images []media.ImageAsset
	Count  int
}

// Suggest returns up to Count prompt ideas. When the model output can't be
// parsed the stock suggestions are returned instead of an error.
func (d *Describer) Suggest(ctx context.Context, req SuggestRequest) ([]string, error) {
	count := req.Count
	if count <= 0 {
		count = 3
	}
	translated := d.Translate(ctx, req.Prompt)
	var instruction string
	if req.Mode == "video" {
		instruction = fmt.Sprintf(suggestVideoInstruction, count, d.language, translated)
	} else {
		instruction = fmt.Sprintf(suggestInstruction, req.Mode, count, d.language, translated)
	}
	if len(req.Images) > 0 {
		instruction += "\nThe user also provided these images as context."
	}
	out, err := d.gen.GenerateText(ctx, instruction, req.Images...)
	if err != nil {
		return nil, fmt.Errorf("suggest prompts: %w", err)
	}
	items, err := decodeSuggestions(out)
	if err != nil {
		d.logger.Warn().Err(err).Str("raw", truncate(out, 200)).Msg("unparseable suggestions, using defaults")
		return defaultSuggestions(count), nil
	}
	if items = dedupe(items, count); len(items) == 0 {
		return defaultSuggestions(count), nil
	}
	return items, nil
}

func defaultSuggestions(n int) []string {
	stock := []string{
		"A photorealistic picture of...",
		"An anime style illustration of...",
		"A cinematic 4k shot of...",
	}
	if n < len(stock) {
		return stock[:n]
	}
	return stock
}

// IsASCII reports whether s only holds 7-bit characters.
func IsASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func cleanModelText(s string) string {
	s = stripFence(s)
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}
