package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

type ingestSummary struct {
	Frames       []string `json:"frames"`
	IntervalMS   int64    `json:"interval_ms"`
	DurationMS   int64    `json:"duration_ms"`
	Audio        string   `json:"audio,omitempty"`
	AudioSkipped bool     `json:"audio_skipped"`
	Analysis     any      `json:"analysis,omitempty"`
}

func newIngestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <video>",
		Short: "Sample frames and extract mono PCM16 audio from a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir, _ := cmd.Flags().GetString("out")
			analyze, _ := cmd.Flags().GetBool("analyze")

			comps, err := build(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()

			input, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			res, err := comps.Ingestor.Ingest(cmd.Context(), input, func(p float64, msg string) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\r%3.0f%% %-30s", p, msg)
			})
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			summary := ingestSummary{
				IntervalMS:   res.Interval.Milliseconds(),
				DurationMS:   res.Duration.Milliseconds(),
				AudioSkipped: res.AudioSkipped,
			}
			for i, f := range res.Frames {
				path, err := writeFile(outDir, fmt.Sprintf("frame_%03d_%06dms.jpg", i, f.Timestamp.Milliseconds()), f.Image.Data)
				if err != nil {
					return err
				}
				summary.Frames = append(summary.Frames, path)
			}
			if !res.Audio.Silent {
				if summary.Audio, err = writeFile(outDir, "audio.pcm", res.Audio.Data); err != nil {
					return err
				}
			}
			if analyze {
				analysis, err := comps.Analyzer.Analyze(cmd.Context(), res)
				if err != nil {
					return err
				}
				summary.Analysis = analysis
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	cmd.Flags().String("out", "ingest", "Output directory for frames and audio")
	cmd.Flags().Bool("analyze", false, "Also produce a storyboard analysis")
	return cmd
}
