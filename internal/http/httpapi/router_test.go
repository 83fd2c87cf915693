package httpapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/history"
	"studio/internal/http/handlers"
	"studio/internal/media"
	"studio/internal/providers/gemini"
	"studio/internal/providers/prompt"
	"studio/internal/storage"
	"studio/internal/studio"
)

type stubExtractor struct {
	err error
}

func (s *stubExtractor) Extract(ctx context.Context, character, concept media.ImageAsset) (*studio.ComponentSet, error) {
	if s.err != nil {
		return nil, s.err
	}
	set := &studio.ComponentSet{SourceKey: studio.SourceKeyFor(character, concept), Components: map[studio.Field]media.ImageAsset{}}
	for i, f := range studio.Fields {
		set.Components[f] = media.ImageAsset{Data: []byte{byte(i + 1)}, MIMEType: media.MIMEPNG}
	}
	return set, nil
}

type stubRecomposer struct {
	res *studio.RecompositionResult
	err error
}

func (s *stubRecomposer) Recompose(ctx context.Context, sel studio.Selection, n int) (*studio.RecompositionResult, error) {
	return s.res, s.err
}

type stubEditor struct {
	magic   studio.MagicRequest
	edit    studio.EditRequest
	restore studio.RestoreRequest
	err     error
}

func (s *stubEditor) one(n int) (*studio.RecompositionResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if n <= 0 {
		n = 1
	}
	res := &studio.RecompositionResult{Instruction: "translated"}
	for range n {
		res.Images = append(res.Images, media.ImageAsset{Data: []byte{6}, MIMEType: media.MIMEPNG})
	}
	return res, nil
}

func (s *stubEditor) Analyze(ctx context.Context, image media.ImageAsset) (string, error) {
	return "a quiet street at night", s.err
}

func (s *stubEditor) Edit(ctx context.Context, req studio.EditRequest, n int) (*studio.RecompositionResult, error) {
	s.edit = req
	return s.one(n)
}

func (s *stubEditor) Magic(ctx context.Context, req studio.MagicRequest) (*studio.RecompositionResult, error) {
	s.magic = req
	return s.one(1)
}

func (s *stubEditor) Restore(ctx context.Context, req studio.RestoreRequest) (media.ImageAsset, error) {
	s.restore = req
	return media.ImageAsset{Data: []byte{8}, MIMEType: media.MIMEPNG}, s.err
}

func (s *stubEditor) ProductShot(ctx context.Context, product media.ImageAsset, scene string, n int) (*studio.RecompositionResult, error) {
	return s.one(n)
}

func (s *stubEditor) Travel(ctx context.Context, req studio.TravelRequest, n int) (*studio.RecompositionResult, error) {
	return s.one(n)
}

func (s *stubEditor) Concept(ctx context.Context, character media.ImageAsset, concept string, n int) (*studio.RecompositionResult, error) {
	return s.one(n)
}

type stubImages struct {
	err error
}

func (s *stubImages) GenerateImages(ctx context.Context, prompt string, count int, aspect string) ([]media.ImageAsset, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]media.ImageAsset, count)
	for i := range out {
		out[i] = media.ImageAsset{Data: []byte{9}, MIMEType: media.MIMEJPEG}
	}
	return out, nil
}

func (s *stubImages) GenerateBackground(ctx context.Context, prompt, aspect string) (media.ImageAsset, error) {
	return media.ImageAsset{Data: []byte{7}, MIMEType: media.MIMEPNG}, s.err
}

type stubVideos struct {
	data []byte
	err  error
}

func (s *stubVideos) Generate(ctx context.Context, prompt string, image *media.ImageAsset) ([]byte, error) {
	return s.data, s.err
}

type stubDescriber struct{}

func (stubDescriber) DescribePose(ctx context.Context, image media.ImageAsset) (string, error) {
	return "standing, smiling", nil
}

func (stubDescriber) Suggest(ctx context.Context, req prompt.SuggestRequest) ([]string, error) {
	return []string{"a", "b"}, nil
}

type stubIngestor struct {
	sawPath string
}

func (s *stubIngestor) Ingest(ctx context.Context, path string, progress media.ProgressFunc) (*media.IngestionResult, error) {
	s.sawPath = path
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if progress != nil {
		progress(50, "Sampling frames")
	}
	return &media.IngestionResult{
		Frames: []media.Frame{
			{Timestamp: 0, Image: media.ImageAsset{Data: []byte{1}, MIMEType: media.MIMEJPEG}},
			{Timestamp: 2 * time.Second, Image: media.ImageAsset{Data: []byte{2}, MIMEType: media.MIMEJPEG}},
		},
		Audio:    media.SilentAudio(16000),
		Duration: 4 * time.Second,
		Interval: 2 * time.Second,
	}, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, res *media.IngestionResult) (*studio.VideoAnalysis, error) {
	return &studio.VideoAnalysis{Summary: "a short clip"}, nil
}

type fixture struct {
	app     *handlers.App
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	archiver := storage.NewArchiver(fs, storage.ArchiverOptions{BaseURL: "http://localhost/static"})
	app := &handlers.App{
		Runs:       studio.NewRunRegistry(0, nil),
		Ingestor:   &stubIngestor{},
		Analyzer:   stubAnalyzer{},
		Extractor:  &stubExtractor{},
		Recomposer: &stubRecomposer{},
		Editor:     &stubEditor{},
		Images:     &stubImages{},
		Videos:     &stubVideos{data: []byte("mp4")},
		Describer:  stubDescriber{},
		History:    history.NewService(history.NewMemoryStore(), history.ServiceOptions{Archiver: archiver}),
		UploadDir:  t.TempDir(),
	}
	return &fixture{app: app, handler: NewRouter(app, RouterOptions{Logger: zerolog.Nop(), StaticDir: fs.BasePath()})}
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func b64(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/v1/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
}

func TestExtractReturnsComponentsAndRecordsHistory(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/components/extract", map[string]string{
		"character": b64([]byte{1, 2}),
		"concept":   b64([]byte{3, 4}),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	comps, _ := body["components"].(map[string]any)
	if len(comps) != len(studio.Fields) {
		t.Fatalf("components = %d", len(comps))
	}
	if _, ok := comps["outfit_2_transparent"]; !ok {
		t.Fatalf("missing outfit_2_transparent: %v", comps)
	}

	hist := f.do(http.MethodGet, "/v1/history", nil)
	items, _ := decodeBody(t, hist)["items"].([]any)
	if len(items) != len(studio.Fields) {
		t.Fatalf("history items = %d", len(items))
	}
}

func TestExtractZip(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/components/extract?format=zip", map[string]string{
		"character": b64([]byte{1}),
		"concept":   b64([]byte{2}),
	})
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/zip" {
		t.Fatalf("status = %d type = %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	if len(zr.File) != len(studio.Fields) || zr.File[0].Name != "character_cutout.png" {
		t.Fatalf("entries = %d first = %q", len(zr.File), zr.File[0].Name)
	}
}

func TestExtractFailureNamesField(t *testing.T) {
	f := newFixture(t)
	f.app.Extractor = &stubExtractor{err: &studio.ExtractionError{
		Field: studio.FieldBackground2,
		Err:   &studio.PolicyRefusalError{FinishReason: "IMAGE_SAFETY", BlockedCategories: []string{"HARM_CATEGORY_HARASSMENT"}},
	}}
	rec := f.do(http.MethodPost, "/v1/components/extract", map[string]string{
		"character": b64([]byte{1}),
		"concept":   b64([]byte{2}),
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	e := decodeBody(t, rec)["error"].(map[string]any)
	details := e["details"].(map[string]any)
	if e["code"] != "extraction_failed" || details["field"] != "background_2" || details["finish_reason"] != "IMAGE_SAFETY" {
		t.Fatalf("error = %v", e)
	}
}

func TestExtractRejectsMissingImage(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/components/extract", map[string]string{"character": b64([]byte{1})})
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "bad_request" {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestRecomposeRateLimited(t *testing.T) {
	f := newFixture(t)
	f.app.Recomposer = &stubRecomposer{err: &studio.RecompositionError{
		Requested: 2,
		Failures: []studio.VariantFailure{
			{Variant: 0, Err: &studio.RateLimitError{Label: "recompose", Attempts: 4, Err: gemini.ErrRateLimited}},
		},
	}}
	rec := f.do(http.MethodPost, "/v1/components/recompose", map[string]any{
		"character": b64([]byte{1}), "outfit": b64([]byte{2}), "background": b64([]byte{3}), "count": 2,
	})
	if rec.Code != http.StatusTooManyRequests || errorCode(t, rec) != "rate_limited" {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestRecomposePartialSuccess(t *testing.T) {
	f := newFixture(t)
	f.app.Recomposer = &stubRecomposer{res: &studio.RecompositionResult{
		Images:      []media.ImageAsset{{Data: []byte{5}, MIMEType: media.MIMEPNG}},
		Failures:    []studio.VariantFailure{{Variant: 1, Err: errors.New("no image")}},
		Instruction: "waving",
	}}
	rec := f.do(http.MethodPost, "/v1/components/recompose", map[string]any{
		"character": b64([]byte{1}), "outfit": b64([]byte{2}), "background": b64([]byte{3}), "instruction": "waving", "count": 2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if imgs := body["images"].([]any); len(imgs) != 1 {
		t.Fatalf("images = %d", len(imgs))
	}
	if fails := body["failures"].([]any); len(fails) != 1 {
		t.Fatalf("failures = %d", len(fails))
	}
}

func TestImagesGenerateInvalidInput(t *testing.T) {
	f := newFixture(t)
	f.app.Images = &stubImages{err: domain.ErrInvalidInput}
	rec := f.do(http.MethodPost, "/v1/images/generate", map[string]any{"prompt": "", "count": 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestImagesGenerateRecordsPrompt(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/images/generate", map[string]any{"prompt": "a red fox", "count": 2, "aspect_ratio": "16:9"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	prompts := decodeBody(t, f.do(http.MethodGet, "/v1/prompts", nil))["items"].([]any)
	if len(prompts) != 1 || prompts[0] != "a red fox" {
		t.Fatalf("prompts = %v", prompts)
	}
}

func TestVideoGenerateMP4(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/videos/generate?format=mp4", map[string]string{"prompt": "waves"})
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != media.MIMEMP4 || rec.Body.String() != "mp4" {
		t.Fatalf("status = %d type = %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestVideoGenerateTimeout(t *testing.T) {
	f := newFixture(t)
	f.app.Videos = &stubVideos{err: studio.ErrVideoPollTimeout}
	rec := f.do(http.MethodPost, "/v1/videos/generate", map[string]string{"prompt": "waves"})
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d", rec.Code)
	}
}

func multipartVideo(t *testing.T, path string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("video", "clip.mp4")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = fw.Write([]byte("fake video"))
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestIngestRunsAsynchronously(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, multipartVideo(t, "/v1/videos/ingest", map[string]string{"analyze": "true"}))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	id, _ := decodeBody(t, rec)["run_id"].(string)

	deadline := time.Now().Add(2 * time.Second)
	var run map[string]any
	for time.Now().Before(deadline) {
		run = decodeBody(t, f.do(http.MethodGet, "/v1/runs/"+id, nil))
		if run["state"] == string(studio.RunSucceeded) || run["state"] == string(studio.RunFailed) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if run["state"] != string(studio.RunSucceeded) {
		t.Fatalf("run = %v", run)
	}
	result := run["result"].(map[string]any)
	if frames := result["frames"].([]any); len(frames) != 2 {
		t.Fatalf("frames = %d", len(frames))
	}
	if result["interval_ms"] != float64(2000) || result["analysis"] == nil {
		t.Fatalf("result = %v", result)
	}
	path := f.app.Ingestor.(*stubIngestor).sawPath
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("upload %q not removed: %v", path, err)
	}
}

func TestIngestRequiresFile(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("analyze", "false")
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/v1/videos/ingest", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRunNotFound(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(http.MethodGet, "/v1/runs/nope", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHistoryDeleteAndStatic(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/backgrounds/generate", map[string]string{"prompt": "beach"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	items := decodeBody(t, f.do(http.MethodGet, "/v1/history", nil))["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %d", len(items))
	}
	item := items[0].(map[string]any)
	url := item["data"].(string)
	staticPath := url[len("http://localhost"):]
	if rec := f.do(http.MethodGet, staticPath, nil); rec.Code != http.StatusOK || rec.Body.Len() != 1 {
		t.Fatalf("static %s: status = %d", staticPath, rec.Code)
	}

	id := item["id"].(string)
	if rec := f.do(http.MethodDelete, "/v1/history/"+id, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := f.do(http.MethodDelete, "/v1/history/"+id, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rec.Code)
	}
}

func TestPoseDescribe(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/pose/describe", map[string]string{"image": b64([]byte{1})})
	if rec.Code != http.StatusOK || decodeBody(t, rec)["description"] != "standing, smiling" {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestImagesAnalyzeRecordsText(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/images/analyze", map[string]string{"image": b64([]byte{1})})
	if rec.Code != http.StatusOK || decodeBody(t, rec)["description"] != "a quiet street at night" {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	items := decodeBody(t, f.do(http.MethodGet, "/v1/history", nil))["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["type"] != "text" {
		t.Fatalf("history = %v", items)
	}
}

func TestImagesEditDecodesOptionalAssets(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/images/edit", map[string]any{
		"prompt":     "picnic",
		"characters": []string{b64([]byte{1}), b64([]byte{2})},
		"background": b64([]byte{3}),
		"count":      2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	ed := f.app.Editor.(*stubEditor)
	if len(ed.edit.Characters) != 2 || !ed.edit.Product.Empty() || ed.edit.Background.Empty() {
		t.Fatalf("edit request = %+v", ed.edit)
	}
	if imgs := decodeBody(t, rec)["images"].([]any); len(imgs) != 2 {
		t.Fatalf("images = %d", len(imgs))
	}
}

func TestImagesEditRejectsBadCharacter(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/images/edit", map[string]any{"prompt": "x", "characters": []string{"%%%"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestImagesMagicPassesMask(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/images/magic", map[string]any{
		"action": "remove-object",
		"image":  b64([]byte{1}),
		"mask":   b64([]byte{2}),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	ed := f.app.Editor.(*stubEditor)
	if ed.magic.Action != studio.MagicRemoveObject || ed.magic.Mask.Empty() {
		t.Fatalf("magic request = %+v", ed.magic)
	}
}

func TestImagesMagicAllVariantsRefused(t *testing.T) {
	f := newFixture(t)
	f.app.Editor = &stubEditor{err: &studio.RecompositionError{Op: "magic edit", Requested: 1, FinishReason: "IMAGE_SAFETY"}}
	rec := f.do(http.MethodPost, "/v1/images/magic", map[string]any{"action": "upscale", "image": b64([]byte{1})})
	if rec.Code != http.StatusUnprocessableEntity || errorCode(t, rec) != "recomposition_failed" {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestImagesRestore(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/images/restore", map[string]any{
		"image":        b64([]byte{1}),
		"template":     "colourise",
		"enhancements": []string{"remove scratches"},
	})
	if rec.Code != http.StatusOK || decodeBody(t, rec)["image"] == nil {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := f.app.Editor.(*stubEditor).restore; got.Template != "colourise" || len(got.Enhancements) != 1 {
		t.Fatalf("restore request = %+v", got)
	}
}

func TestImagesSceneModes(t *testing.T) {
	f := newFixture(t)
	for path, body := range map[string]map[string]any{
		"/v1/images/product-shot": {"product": b64([]byte{1}), "scene": "marble", "count": 2},
		"/v1/images/travel":       {"characters": []string{b64([]byte{1})}, "location": "Da Lat", "count": 2},
		"/v1/images/concept":      {"character": b64([]byte{1}), "concept": "astronaut", "count": 2},
	} {
		rec := f.do(http.MethodPost, path, body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d body=%s", path, rec.Code, rec.Body.String())
		}
		if imgs := decodeBody(t, rec)["images"].([]any); len(imgs) != 2 {
			t.Fatalf("%s: images = %d", path, len(imgs))
		}
	}
}
