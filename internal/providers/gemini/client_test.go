package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"studio/internal/media"
)

type stubModels struct {
	content    *genai.GenerateContentResponse
	images     *genai.GenerateImagesResponse
	operation  *genai.GenerateVideosOperation
	err        error
	calls      int
	lastModel  string
	lastConfig *genai.GenerateContentConfig
	lastParts  []*genai.Part
}

func (s *stubModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	s.calls++
	s.lastModel = model
	s.lastConfig = config
	if len(contents) > 0 {
		s.lastParts = contents[0].Parts
	}
	return s.content, s.err
}

func (s *stubModels) GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	s.calls++
	s.lastModel = model
	return s.images, s.err
}

func (s *stubModels) GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	s.calls++
	s.lastModel = model
	return s.operation, s.err
}

type stubOperations struct {
	queue []*genai.GenerateVideosOperation
	calls int
}

func (s *stubOperations) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error) {
	s.calls++
	next := s.queue[0]
	s.queue = s.queue[1:]
	return next, nil
}

type stubFiles struct {
	data  []byte
	err   error
	calls int
	uri   genai.DownloadURI
}

func (s *stubFiles) Download(ctx context.Context, uri genai.DownloadURI, config *genai.DownloadFileConfig) ([]byte, error) {
	s.calls++
	s.uri = uri
	return s.data, s.err
}

func imageResponse(mime string, data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here you go"},
				{InlineData: &genai.Blob{MIMEType: mime, Data: data}},
			}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func TestGenerateImageReturnsFirstImagePart(t *testing.T) {
	models := &stubModels{content: imageResponse("image/png", []byte{1, 2, 3})}
	client := newClient(models, nil, nil, Options{APIKey: "k"})
	src := media.ImageAsset{Data: []byte{9}, MIMEType: "image/jpeg"}
	asset, err := client.GenerateImage(context.Background(), "cut out the subject", src)
	if err != nil {
		t.Fatalf("GenerateImage error: %v", err)
	}
	if asset.MIMEType != "image/png" || len(asset.Data) != 3 {
		t.Fatalf("unexpected asset: %#v", asset)
	}
	if models.lastModel != "gemini-2.5-flash-image" {
		t.Fatalf("model = %q", models.lastModel)
	}
	if models.lastConfig == nil || len(models.lastConfig.ResponseModalities) != 1 || models.lastConfig.ResponseModalities[0] != "IMAGE" {
		t.Fatalf("expected image-only modality, got %#v", models.lastConfig)
	}
	if len(models.lastParts) != 2 || models.lastParts[0].InlineData == nil || models.lastParts[1].Text == "" {
		t.Fatalf("expected image part then instruction, got %#v", models.lastParts)
	}
}

func TestGenerateImageRefusalCarriesSafetyMetadata(t *testing.T) {
	models := &stubModels{content: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: "I can't help with that"}}},
			FinishReason: genai.FinishReason("IMAGE_SAFETY"),
			SafetyRatings: []*genai.SafetyRating{
				{Category: genai.HarmCategoryHarassment, Blocked: false},
				{Category: genai.HarmCategorySexuallyExplicit, Blocked: true},
			},
		}},
	}}
	client := newClient(models, nil, nil, Options{APIKey: "k"})
	_, err := client.GenerateImage(context.Background(), "x")
	var refusal *RefusalError
	if !errors.As(err, &refusal) {
		t.Fatalf("expected *RefusalError, got %v", err)
	}
	if refusal.FinishReason != "IMAGE_SAFETY" {
		t.Fatalf("FinishReason = %q", refusal.FinishReason)
	}
	if len(refusal.BlockedCategories) != 1 || refusal.BlockedCategories[0] != string(genai.HarmCategorySexuallyExplicit) {
		t.Fatalf("BlockedCategories = %v", refusal.BlockedCategories)
	}
	if !strings.Contains(err.Error(), "finishReason: IMAGE_SAFETY") {
		t.Fatalf("error text should carry finish reason: %q", err.Error())
	}
}

func TestGenerateImageNoCandidatesUsesPromptFeedback(t *testing.T) {
	models := &stubModels{content: &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
	}}
	client := newClient(models, nil, nil, Options{APIKey: "k"})
	_, err := client.GenerateImage(context.Background(), "x")
	var refusal *RefusalError
	if !errors.As(err, &refusal) || refusal.FinishReason != string(genai.BlockedReasonSafety) {
		t.Fatalf("expected prompt block refusal, got %v", err)
	}
}

func TestRateLimitClassification(t *testing.T) {
	models := &stubModels{err: errors.New("Error 429, Message: Resource has been exhausted, Status: RESOURCE_EXHAUSTED")}
	client := newClient(models, nil, nil, Options{APIKey: "k"})
	_, err := client.GenerateImage(context.Background(), "x")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if !IsRateLimit(err) {
		t.Fatal("IsRateLimit should accept classified error")
	}
}

func TestIsRateLimit(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("status 429 too many requests"), true},
		{errors.New("RESOURCE_EXHAUSTED: quota"), true},
		{errors.New("request 14290 failed"), false},
		{errors.New("permission denied"), false},
	}
	for _, tc := range tests {
		if got := IsRateLimit(tc.err); got != tc.want {
			t.Fatalf("IsRateLimit(%v) = %t, want %t", tc.err, got, tc.want)
		}
	}
}

func TestGenerateImageBatchAllFiltered(t *testing.T) {
	models := &stubModels{images: &genai.GenerateImagesResponse{
		GeneratedImages: []*genai.GeneratedImage{{
			RAIFilteredReason: "filtered for safety",
			SafetyAttributes:  &genai.SafetyAttributes{Categories: []string{"Violence"}},
		}},
	}}
	client := newClient(models, nil, nil, Options{APIKey: "k"})
	_, err := client.GenerateImageBatch(context.Background(), "a castle", BatchOptions{Count: 2, AspectRatio: "16:9"})
	var refusal *RefusalError
	if !errors.As(err, &refusal) {
		t.Fatalf("expected *RefusalError, got %v", err)
	}
	if len(refusal.BlockedCategories) != 1 || refusal.BlockedCategories[0] != "Violence" {
		t.Fatalf("BlockedCategories = %v", refusal.BlockedCategories)
	}
}

func TestGenerateImageBatchKeepsSuccesses(t *testing.T) {
	models := &stubModels{images: &genai.GenerateImagesResponse{
		GeneratedImages: []*genai.GeneratedImage{
			{Image: &genai.Image{ImageBytes: []byte{1}}},
			{RAIFilteredReason: "filtered"},
			{Image: &genai.Image{ImageBytes: []byte{2}, MIMEType: "image/png"}},
		},
	}}
	client := newClient(models, nil, nil, Options{APIKey: "k"})
	out, err := client.GenerateImageBatch(context.Background(), "a castle", BatchOptions{Count: 3})
	if err != nil {
		t.Fatalf("GenerateImageBatch error: %v", err)
	}
	if len(out) != 2 || out[0].MIMEType != media.MIMEJPEG || out[1].MIMEType != "image/png" {
		t.Fatalf("unexpected images: %#v", out)
	}
}

func TestVideoOperationLifecycle(t *testing.T) {
	models := &stubModels{operation: &genai.GenerateVideosOperation{Name: "operations/1"}}
	ops := &stubOperations{queue: []*genai.GenerateVideosOperation{
		{Name: "operations/1", Done: true, Response: &genai.GenerateVideosResponse{
			GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{URI: "https://files.example.com/v1/video.mp4"}}},
		}},
	}}
	files := &stubFiles{data: []byte("mp4-bytes")}
	client := newClient(models, ops, files, Options{APIKey: "secret"})

	op, err := client.GenerateVideo(context.Background(), "a cat surfing", nil)
	if err != nil {
		t.Fatalf("GenerateVideo error: %v", err)
	}
	if op.Done {
		t.Fatal("fresh operation should not be done")
	}
	op, err = client.PollVideoOperation(context.Background(), op)
	if err != nil {
		t.Fatalf("PollVideoOperation error: %v", err)
	}
	if !op.Done || op.VideoURI == "" {
		t.Fatalf("unexpected operation: %#v", op)
	}
	data, err := client.DownloadVideo(context.Background(), op)
	if err != nil {
		t.Fatalf("DownloadVideo error: %v", err)
	}
	if string(data) != "mp4-bytes" {
		t.Fatalf("data = %q", data)
	}
	if files.calls != 1 || files.uri == nil {
		t.Fatalf("files download calls = %d", files.calls)
	}
}

func TestDownloadVideoPrefersInlineBytes(t *testing.T) {
	files := &stubFiles{data: []byte("remote")}
	client := newClient(&stubModels{}, nil, files, Options{APIKey: "k"})
	op := toVideoOperation(&genai.GenerateVideosOperation{Done: true, Response: &genai.GenerateVideosResponse{
		GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{URI: "https://files.example.com/v.mp4", VideoBytes: []byte("inline")}}},
	}})
	data, err := client.DownloadVideo(context.Background(), op)
	if err != nil || string(data) != "inline" || files.calls != 0 {
		t.Fatalf("data = %q err = %v calls = %d", data, err, files.calls)
	}
}

func TestDownloadVideoError(t *testing.T) {
	files := &stubFiles{err: errors.New("Error 403, Message: permission denied, Status: PERMISSION_DENIED")}
	client := newClient(&stubModels{}, nil, files, Options{APIKey: "k"})
	op := toVideoOperation(&genai.GenerateVideosOperation{Done: true, Response: &genai.GenerateVideosResponse{
		GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{URI: "https://files.example.com/v.mp4"}}},
	}})
	if _, err := client.DownloadVideo(context.Background(), op); err == nil {
		t.Fatal("expected download error")
	}
}

func TestDownloadVideoWithoutURI(t *testing.T) {
	client := newClient(&stubModels{}, nil, nil, Options{APIKey: "k"})
	if _, err := client.DownloadVideo(context.Background(), &VideoOperation{Done: true}); !errors.Is(err, ErrNoVideo) {
		t.Fatalf("expected ErrNoVideo, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(context.Background(), Options{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}
