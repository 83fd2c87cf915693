package studio

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/media"
	"studio/internal/providers/gemini"
)

// StructuredModel returns JSON constrained by a JSON Schema document.
type StructuredModel interface {
	GenerateStructured(ctx context.Context, instruction string, schema any, inline ...gemini.Inline) (string, error)
}

type StoryboardEntry struct {
	TimestampSeconds float64 `json:"timestamp_seconds" jsonschema:"description=Timestamp of the keyframe in seconds."`
	Description      string  `json:"description" jsonschema:"description=What happens in this keyframe."`
	KeyframeIndex    int     `json:"keyframe_index" jsonschema:"description=Index of the keyframe in the supplied frame list."`
}

type SceneTransition struct {
	StartTimeSeconds float64 `json:"start_time_seconds" jsonschema:"description=Scene start in seconds."`
	EndTimeSeconds   float64 `json:"end_time_seconds" jsonschema:"description=Scene end in seconds."`
	Description      string  `json:"description" jsonschema:"description=What happens during this scene."`
}

// VideoAnalysis is the structured description of an ingested video.
type VideoAnalysis struct {
	Summary          string            `json:"summary" jsonschema:"description=One paragraph summary of the whole video."`
	Storyboard       []StoryboardEntry `json:"storyboard" jsonschema:"description=Keyframes with descriptions."`
	SceneTransitions []SceneTransition `json:"scene_transitions" jsonschema:"description=Scenes with start and end times."`
	Transcription    string            `json:"transcription" jsonschema:"description=Word for word transcription of the speech in the audio track."`
	SRTSubtitles     string            `json:"srt_subtitles" jsonschema:"description=The transcription formatted as SubRip (SRT) subtitles."`
}

// NoSpeechMarker is what the model must return for transcripts of videos
// without speech.
const NoSpeechMarker = "[No speech]"

const analysisTemplate = `You are a video analysis expert specialising in audio transcription and scene description. Analyse the sequence of video frames%s and return a JSON object in %s.

PRIMARY TASK: AUDIO TRANSCRIPTION
1. Listen to the audio track carefully.
2. Provide a full, word for word transcription in the 'transcription' field.
3. Format the transcription as SRT file content in the 'srt_subtitles' field.
4. If there is any discernible speech these fields must not be empty. If there is no speech at all, return %q in both fields.

SECONDARY TASKS:
- 'summary': a concise one paragraph summary of the video's content and context.
- 'storyboard': describe keyframes in detail.
- 'scene_transitions': describe the scenes between specific times.

The first frame is at 0 seconds and each following frame is %s seconds after the previous one.`

type VideoAnalyzerOptions struct {
	Language string
	Logger   *infra.Logger
}

// VideoAnalyzer describes an ingestion result with a structured model call.
type VideoAnalyzer struct {
	model    StructuredModel
	schema   *jsonschema.Schema
	language string
	logger   *infra.Logger
}

func NewVideoAnalyzer(model StructuredModel, opts VideoAnalyzerOptions) *VideoAnalyzer {
	language := strings.TrimSpace(opts.Language)
	if language == "" {
		language = "English"
	}
	return &VideoAnalyzer{
		model:    model,
		schema:   AnalysisSchema(),
		language: language,
		logger:   infra.ComponentLogger(opts.Logger, "analyzer"),
	}
}

// AnalysisSchema reflects the response schema from VideoAnalysis.
func AnalysisSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
		Anonymous:      true,
	}
	s := r.Reflect(&VideoAnalysis{})
	s.Version = ""
	return s
}

// Instruction renders the analysis instruction for result.
func (a *VideoAnalyzer) Instruction(result *media.IngestionResult) string {
	audio := " and the audio track"
	if result.Audio.Silent || len(result.Audio.Data) == 0 {
		audio = " (the video has no audio track)"
	}
	interval := result.Interval.Seconds()
	if interval <= 0 {
		interval = 1
	}
	return fmt.Sprintf(analysisTemplate, audio, a.language, NoSpeechMarker, strconv.FormatFloat(interval, 'f', -1, 64))
}

// Analyze sends the instruction, the audio (unless silent) and every frame.
func (a *VideoAnalyzer) Analyze(ctx context.Context, result *media.IngestionResult) (*VideoAnalysis, error) {
	if result == nil || len(result.Frames) == 0 {
		return nil, fmt.Errorf("%w: no frames to analyse", domain.ErrInvalidInput)
	}
	inline := make([]gemini.Inline, 0, len(result.Frames)+1)
	if !result.Audio.Silent && len(result.Audio.Data) > 0 {
		inline = append(inline, gemini.Inline{Data: result.Audio.Data, MIMEType: result.Audio.MIMEType})
	}
	for _, f := range result.Frames {
		inline = append(inline, gemini.Inline{Data: f.Image.Data, MIMEType: f.Image.MIMEType})
	}
	raw, err := a.model.GenerateStructured(ctx, a.Instruction(result), a.schema, inline...)
	if err != nil {
		return nil, err
	}
	var out VideoAnalysis
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: decode analysis: %v", domain.ErrProviderFailure, err)
	}
	if result.Audio.Silent && strings.TrimSpace(out.Transcription) == "" {
		out.Transcription = NoSpeechMarker
		out.SRTSubtitles = NoSpeechMarker
	}
	a.logger.Info().Int("frames", len(result.Frames)).Int("storyboard", len(out.Storyboard)).Msg("video analysed")
	return &out, nil
}
