package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"studio/internal/infra"
	"studio/internal/media"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey            string
	BaseURL           string
	TextModel         string
	ImageModel        string
	ImagenModel       string
	VideoModel        string
	RequestsPerMinute int
	HTTPClient        *http.Client
	Logger            *infra.Logger
}

type modelService interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
	GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

type fileService interface {
	Download(ctx context.Context, uri genai.DownloadURI, config *genai.DownloadFileConfig) ([]byte, error)
}

type operationService interface {
	GetVideosOperation(ctx context.Context, operation *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

// Client is the remote inference boundary: text, image, batch image and
// video generation against the Gemini API. All calls share one client-side
// rate limiter since the API's quota is per key.
type Client struct {
	models      modelService
	operations  operationService
	files       fileService
	textModel   string
	imageModel  string
	imagenModel string
	videoModel  string
	limiter     *rate.Limiter
	logger      *infra.Logger
}

// NewClient builds a client backed by the genai SDK.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if base := strings.TrimRight(opts.BaseURL, "/"); base != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	sdk, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newClient(sdk.Models, sdk.Operations, sdk.Files, opts), nil
}

func newClient(models modelService, operations operationService, files fileService, opts Options) *Client {
	rpm := opts.RequestsPerMinute
	limiter := rate.NewLimiter(rate.Inf, 1)
	if rpm > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), max(1, rpm/10))
	}
	return &Client{
		models:      models,
		operations:  operations,
		files:       files,
		textModel:   orDefault(opts.TextModel, "gemini-2.5-flash"),
		imageModel:  orDefault(opts.ImageModel, "gemini-2.5-flash-image"),
		imagenModel: orDefault(opts.ImagenModel, "imagen-4.0-generate-001"),
		videoModel:  orDefault(opts.VideoModel, "veo-3.1-fast-generate-preview"),
		limiter:     limiter,
		logger:      infra.ComponentLogger(opts.Logger, "gemini"),
	}
}

// GenerateText sends instruction plus optional images and returns the text
// of the first candidate.
func (c *Client) GenerateText(ctx context.Context, instruction string, images ...media.ImageAsset) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(instruction)}
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	resp, err := c.generate(ctx, "generate_text", c.textModel, parts, nil)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini generate_text: empty response")
	}
	return text, nil
}

// GenerateImage asks the image model for an image-only response. Images are
// sent before the instruction so prompts can refer to them by position. A
// response without an image part yields *RefusalError.
func (c *Client) GenerateImage(ctx context.Context, instruction string, images ...media.ImageAsset) (media.ImageAsset, error) {
	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(instruction))
	resp, err := c.generate(ctx, "generate_image", c.imageModel, parts, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	})
	if err != nil {
		return media.ImageAsset{}, err
	}
	return imageFromResponse(resp)
}

// Inline is a binary part for multimodal requests.
type Inline struct {
	Data     []byte
	MIMEType string
}

// GenerateStructured requests a JSON response constrained by schema, a JSON
// Schema document. Parts follow the instruction in order; empty parts are
// skipped.
func (c *Client) GenerateStructured(ctx context.Context, instruction string, schema any, inline ...Inline) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(instruction)}
	for _, in := range inline {
		if len(in.Data) == 0 {
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(in.Data, in.MIMEType))
	}
	resp, err := c.generate(ctx, "generate_structured", c.textModel, parts, &genai.GenerateContentConfig{
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: schema,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini generate_structured: empty response")
	}
	return text, nil
}

func (c *Client) generate(ctx context.Context, op, model string, parts []*genai.Part, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := c.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		c.logger.Debug().Err(err).Str("operation", op).Str("model", model).Msg("request failed")
		return nil, classify(op, err)
	}
	c.logger.Debug().Str("operation", op).Str("model", model).Dur("took", time.Since(start)).Msg("request ok")
	return resp, nil
}

func imageFromResponse(resp *genai.GenerateContentResponse) (media.ImageAsset, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		refusal := &RefusalError{FinishReason: "NO_CANDIDATES"}
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			refusal.FinishReason = string(resp.PromptFeedback.BlockReason)
			refusal.BlockedCategories = blockedCategories(resp.PromptFeedback.SafetyRatings)
		}
		return media.ImageAsset{}, refusal
	}
	cand := resp.Candidates[0]
	var texts []string
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 && strings.HasPrefix(part.InlineData.MIMEType, "image/") {
				return media.ImageAsset{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, nil
			}
			if t := strings.TrimSpace(part.Text); t != "" {
				texts = append(texts, t)
			}
		}
	}
	return media.ImageAsset{}, &RefusalError{
		FinishReason:      string(cand.FinishReason),
		BlockedCategories: blockedCategories(cand.SafetyRatings),
		Text:              strings.Join(texts, " "),
	}
}

func blockedCategories(ratings []*genai.SafetyRating) []string {
	var out []string
	for _, r := range ratings {
		if r != nil && r.Blocked {
			out = append(out, string(r.Category))
		}
	}
	return out
}

// BatchOptions configures GenerateImageBatch.
type BatchOptions struct {
	Count       int
	AspectRatio string
}

// GenerateImageBatch generates Count images from text alone. If every image
// is filtered the first filter reason is returned as *RefusalError.
func (c *Client) GenerateImageBatch(ctx context.Context, prompt string, opts BatchOptions) ([]media.ImageAsset, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	count := opts.Count
	if count <= 0 {
		count = 1
	}
	resp, err := c.models.GenerateImages(ctx, c.imagenModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages:   int32(count),
		AspectRatio:      opts.AspectRatio,
		OutputMIMEType:   media.MIMEJPEG,
		IncludeRAIReason: true,
	})
	if err != nil {
		return nil, classify("generate_images", err)
	}
	var (
		out     []media.ImageAsset
		refusal *RefusalError
	)
	for _, gen := range resp.GeneratedImages {
		if gen == nil {
			continue
		}
		if gen.Image != nil && len(gen.Image.ImageBytes) > 0 {
			mime := gen.Image.MIMEType
			if mime == "" {
				mime = media.MIMEJPEG
			}
			out = append(out, media.ImageAsset{Data: gen.Image.ImageBytes, MIMEType: mime})
			continue
		}
		if refusal == nil {
			refusal = &RefusalError{FinishReason: gen.RAIFilteredReason}
			if gen.SafetyAttributes != nil {
				refusal.BlockedCategories = gen.SafetyAttributes.Categories
			}
		}
	}
	if len(out) == 0 {
		if refusal == nil {
			refusal = &RefusalError{FinishReason: "NO_IMAGES"}
		}
		return nil, refusal
	}
	return out, nil
}

// VideoOperation is a handle on a long-running video generation job.
type VideoOperation struct {
	Name     string
	Done     bool
	VideoURI string
	Error    string

	raw *genai.GenerateVideosOperation
}

func toVideoOperation(op *genai.GenerateVideosOperation) *VideoOperation {
	out := &VideoOperation{raw: op}
	if op == nil {
		return out
	}
	out.Name = op.Name
	out.Done = op.Done
	if len(op.Error) > 0 {
		out.Error = fmt.Sprint(op.Error["message"])
	}
	if op.Response != nil {
		for _, v := range op.Response.GeneratedVideos {
			if v != nil && v.Video != nil && v.Video.URI != "" {
				out.VideoURI = v.Video.URI
				break
			}
		}
	}
	return out
}

// GenerateVideo starts a video job from prompt and an optional first frame.
func (c *Client) GenerateVideo(ctx context.Context, prompt string, image *media.ImageAsset) (*VideoOperation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var img *genai.Image
	if image != nil && !image.Empty() {
		img = &genai.Image{ImageBytes: image.Data, MIMEType: image.MIMEType}
	}
	op, err := c.models.GenerateVideos(ctx, c.videoModel, prompt, img, &genai.GenerateVideosConfig{NumberOfVideos: 1})
	if err != nil {
		return nil, classify("generate_video", err)
	}
	c.logger.Info().Str("operation", op.Name).Str("model", c.videoModel).Msg("video job started")
	return toVideoOperation(op), nil
}

// PollVideoOperation refreshes op once.
func (c *Client) PollVideoOperation(ctx context.Context, op *VideoOperation) (*VideoOperation, error) {
	if op == nil || op.raw == nil {
		return nil, fmt.Errorf("gemini poll_video: operation is required")
	}
	next, err := c.operations.GetVideosOperation(ctx, op.raw, nil)
	if err != nil {
		return nil, classify("poll_video", err)
	}
	return toVideoOperation(next), nil
}

// DownloadVideo returns the finished video's bytes, fetching them from the
// Files API when the operation only carries a URI.
func (c *Client) DownloadVideo(ctx context.Context, op *VideoOperation) ([]byte, error) {
	if op == nil || op.raw == nil || op.raw.Response == nil {
		return nil, ErrNoVideo
	}
	for _, v := range op.raw.Response.GeneratedVideos {
		if v == nil || v.Video == nil {
			continue
		}
		if len(v.Video.VideoBytes) > 0 {
			return v.Video.VideoBytes, nil
		}
		if v.Video.URI == "" || c.files == nil {
			continue
		}
		data, err := c.files.Download(ctx, genai.NewDownloadURIFromGeneratedVideo(v), nil)
		if err != nil {
			return nil, classify("download_video", err)
		}
		if len(data) == 0 {
			return nil, ErrNoVideo
		}
		return data, nil
	}
	return nil, ErrNoVideo
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
