package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"studio/internal/domain"
	"studio/internal/history"
	"studio/internal/media"
)

type frameDTO struct {
	TimestampMS int64  `json:"timestamp_ms"`
	Image       string `json:"image"`
}

type audioDTO struct {
	MIMEType string `json:"mime_type"`
	Bytes    int    `json:"bytes"`
	Silent   bool   `json:"silent"`
}

type ingestionDTO struct {
	Frames       []frameDTO `json:"frames"`
	IntervalMS   int64      `json:"interval_ms"`
	DurationMS   int64      `json:"duration_ms"`
	Audio        audioDTO   `json:"audio"`
	AudioSkipped bool       `json:"audio_skipped"`
	Analysis     any        `json:"analysis,omitempty"`
}

func toIngestionDTO(res *media.IngestionResult) ingestionDTO {
	dto := ingestionDTO{
		Frames:       make([]frameDTO, 0, len(res.Frames)),
		IntervalMS:   res.Interval.Milliseconds(),
		DurationMS:   res.Duration.Milliseconds(),
		Audio:        audioDTO{MIMEType: res.Audio.MIMEType, Bytes: len(res.Audio.Data), Silent: res.Audio.Silent},
		AudioSkipped: res.AudioSkipped,
	}
	for _, f := range res.Frames {
		dto.Frames = append(dto.Frames, frameDTO{TimestampMS: f.Timestamp.Milliseconds(), Image: dataURI(f.Image)})
	}
	return dto
}

// saveUpload copies the multipart "video" file to a temporary path. The
// caller removes the file.
func (a *App) saveUpload(w http.ResponseWriter, r *http.Request) (string, error) {
	limit := a.MaxUploadBytes
	if limit <= 0 {
		limit = 200 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", err
		}
		return "", fmt.Errorf("%w: multipart form: %v", domain.ErrInvalidInput, err)
	}
	file, header, err := r.FormFile("video")
	if err != nil {
		return "", fmt.Errorf("%w: video file is required", domain.ErrInvalidInput)
	}
	defer file.Close()

	tmp, err := os.CreateTemp(a.UploadDir, "ingest-*"+strings.ToLower(filepath.Ext(header.Filename)))
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// VideosIngest starts an asynchronous ingestion run and answers with its id.
// With analyze=true the run also produces the storyboard analysis.
func (a *App) VideosIngest(w http.ResponseWriter, r *http.Request) {
	path, err := a.saveUpload(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	analyze := r.FormValue("analyze") == "true" && a.Analyzer != nil

	ctx := context.WithoutCancel(r.Context())
	id := a.Runs.Go(ctx, "ingest", func(ctx context.Context, progress func(float64, string)) (any, error) {
		defer os.Remove(path)
		scale := 1.0
		if analyze {
			scale = 0.8
		}
		res, err := a.Ingestor.Ingest(ctx, path, func(p float64, msg string) { progress(p*scale, msg) })
		if err != nil {
			return nil, err
		}
		dto := toIngestionDTO(res)
		if analyze {
			progress(80, "Analyzing video")
			analysis, err := a.Analyzer.Analyze(ctx, res)
			if err != nil {
				return nil, err
			}
			dto.Analysis = analysis
		}
		return dto, nil
	})
	a.json(w, http.StatusAccepted, map[string]string{"run_id": id, "status_url": "/v1/runs/" + id})
}

// VideosAnalyze ingests and analyzes a video within the request.
func (a *App) VideosAnalyze(w http.ResponseWriter, r *http.Request) {
	path, err := a.saveUpload(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer os.Remove(path)

	res, err := a.Ingestor.Ingest(r.Context(), path, nil)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	analysis, err := a.Analyzer.Analyze(r.Context(), res)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"analysis":    analysis,
		"frames":      len(res.Frames),
		"interval_ms": res.Interval.Milliseconds(),
		"history":     a.record(r.Context(), "analyze", "", []history.Output{history.TextOutput(analysis.Summary)}),
	})
}

type videoGenerateRequest struct {
	Prompt string `json:"prompt"`
	Image  string `json:"image,omitempty"`
}

// VideosGenerate blocks until the remote video is ready. With format=mp4 the
// bytes are streamed back; otherwise the video is stored in history and its
// URL returned.
func (a *App) VideosGenerate(w http.ResponseWriter, r *http.Request) {
	var req videoGenerateRequest
	if !a.decode(w, r, &req) {
		return
	}
	var image *media.ImageAsset
	if req.Image != "" {
		asset, err := decodeImage("image", req.Image)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		image = &asset
	}
	video, err := a.Videos.Generate(r.Context(), req.Prompt, image)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	summary := a.record(r.Context(), "video", req.Prompt, []history.Output{history.VideoOutput(video)})
	if wantsFormat(r, "mp4") {
		w.Header().Set("Content-Type", media.MIMEMP4)
		w.Header().Set("Content-Disposition", "attachment; filename=video.mp4")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(video)
		return
	}
	resp := map[string]any{"bytes": len(video), "history": summary}
	if summary != nil && len(summary.Items) > 0 {
		resp["url"] = summary.Items[0].Data
	}
	a.json(w, http.StatusOK, resp)
}
