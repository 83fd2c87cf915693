package prompt

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"studio/internal/media"
)

type OpenAIOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	OnWarning  func(reason, detail string)
}

// OpenAIGenerator is a Generator backed by the chat completions API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

const defaultOpenAIModel = "gpt-4o-mini"

// Vision-capable chat models the describer is known to work with.
var openAIModelCanonical = map[string]string{
	"gpt-4o":       "gpt-4o",
	"gpt-4o-mini":  "gpt-4o-mini",
	"gpt-4.1":      "gpt-4.1",
	"gpt-4.1-mini": "gpt-4.1-mini",
}

var openAIModelAliases = map[string]string{
	"gpt4o":                  "gpt-4o",
	"gpt4o-mini":             "gpt-4o-mini",
	"gpt4omini":              "gpt-4o-mini",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
	"gpt4.1":                 "gpt-4.1",
	"gpt4.1-mini":            "gpt-4.1-mini",
}

func NewOpenAIGenerator(opts OpenAIOptions) (*OpenAIGenerator, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	modelInput := strings.TrimSpace(opts.Model)
	model, reason := normalizeOpenAIModel(modelInput)
	if reason != "" && opts.OnWarning != nil {
		opts.OnWarning("model_"+reason, fmt.Sprintf("requested=%s resolved=%s", cmp.Or(modelInput, defaultOpenAIModel), model))
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if base := strings.TrimRight(opts.BaseURL, "/"); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	client := openai.NewClient(reqOpts...)
	return &OpenAIGenerator{client: &client, model: model}, nil
}

func (o *OpenAIGenerator) GenerateText(ctx context.Context, instruction string, images ...media.ImageAsset) (string, error) {
	var content openai.ChatCompletionUserMessageParamContentUnion
	if len(images) == 0 {
		content.OfString = param.Opt[string]{Value: instruction}
	} else {
		parts := []openai.ChatCompletionContentPartUnionParam{{
			OfText: &openai.ChatCompletionContentPartTextParam{Text: instruction},
		}}
		for _, img := range images {
			parts = append(parts, openai.ChatCompletionContentPartUnionParam{
				OfImageURL: &openai.ChatCompletionContentPartImageParam{
					ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
						URL: "data:" + img.MIMEType + ";base64," + img.Base64(),
					},
				},
			})
		}
		content.OfArrayOfContentParts = parts
	}
	params := openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{{
			OfUser: &openai.ChatCompletionUserMessageParam{Content: content},
		}},
		Temperature: openai.Float(0.4),
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai completion: no choices returned")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("openai completion: empty content")
	}
	return text, nil
}

func normalizeOpenAIModel(name string) (string, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return defaultOpenAIModel, ""
	}
	normalized := strings.ToLower(trimmed)
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if canonical, ok := openAIModelCanonical[normalized]; ok {
		return canonical, ""
	}
	if alias, ok := openAIModelAliases[normalized]; ok {
		return alias, "alias"
	}
	return defaultOpenAIModel, "defaulted"
}

var _ Generator = (*OpenAIGenerator)(nil)
