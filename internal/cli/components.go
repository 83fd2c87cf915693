package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"studio/internal/bootstrap"
	"studio/internal/history"
	"studio/internal/media"
	"studio/internal/storage"
	"studio/internal/studio"
	"studio/pkg/zip"
)

func newExtractCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <character-image> <concept-image>",
		Short: "Isolate the character, outfits and backgrounds of two images",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir, _ := cmd.Flags().GetString("out")
			zipPath, _ := cmd.Flags().GetString("zip")

			character, err := readImage(args[0])
			if err != nil {
				return err
			}
			concept, err := readImage(args[1])
			if err != nil {
				return err
			}
			comps, err := build(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()

			set, err := comps.Extractor.Extract(cmd.Context(), character, concept)
			if err != nil {
				return err
			}

			var (
				entries []zip.Entry
				outputs []history.Output
			)
			for _, f := range studio.Fields {
				asset, _ := set.Get(f)
				entries = append(entries, zip.Entry{Name: string(f) + storage.ExtensionFor(asset.MIMEType), Data: asset.Data})
				outputs = append(outputs, history.ImageOutput(asset))
			}
			if zipPath != "" {
				file, err := os.Create(zipPath)
				if err != nil {
					return err
				}
				if err := zip.Write(file, entries); err != nil {
					file.Close()
					return err
				}
				if err := file.Close(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), zipPath)
			} else {
				for _, e := range entries {
					path, err := writeFile(outDir, e.Name, e.Data)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), path)
				}
			}
			recordHistory(cmd, comps, "extract", "", outputs)
			return nil
		},
	}
	cmd.Flags().String("out", "components", "Output directory")
	cmd.Flags().String("zip", "", "Write a zip archive to this path instead of loose files")
	return cmd
}

func newRecomposeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recompose",
		Short: "Place a character, wearing an outfit, into a background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			charPath, _ := flags.GetString("character")
			outfitPath, _ := flags.GetString("outfit")
			bgPath, _ := flags.GetString("background")
			instruction, _ := flags.GetString("instruction")
			n, _ := flags.GetInt("n")
			outDir, _ := flags.GetString("out")

			var sel studio.Selection
			for _, in := range []struct {
				path string
				dst  *media.ImageAsset
			}{{charPath, &sel.Character}, {outfitPath, &sel.Outfit}, {bgPath, &sel.Background}} {
				asset, err := readImage(in.path)
				if err != nil {
					return err
				}
				*in.dst = asset
			}
			sel.Instruction = instruction

			comps, err := build(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()

			res, err := comps.Recomposer.Recompose(cmd.Context(), sel, n)
			if err != nil {
				return err
			}
			for i, img := range res.Images {
				path, err := writeFile(outDir, fmt.Sprintf("variant_%d%s", i+1, storage.ExtensionFor(img.MIMEType)), img.Data)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			for _, f := range res.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "variant %d failed: %v\n", f.Variant+1, f.Err)
			}
			outputs := make([]history.Output, 0, len(res.Images))
			for _, img := range res.Images {
				outputs = append(outputs, history.ImageOutput(img))
			}
			recordHistory(cmd, comps, "recompose", instruction, outputs)
			return nil
		},
	}
	f := cmd.Flags()
	f.String("character", "", "Character image")
	f.String("outfit", "", "Outfit image")
	f.String("background", "", "Background image")
	f.String("instruction", "", "Pose and action for the character")
	f.IntP("n", "n", 1, "Number of variants")
	f.String("out", "recomposed", "Output directory")
	for _, name := range []string{"character", "outfit", "background"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newPoseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pose <image>",
		Short: "Describe the pose and emotion of the person in an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := readImage(args[0])
			if err != nil {
				return err
			}
			comps, err := build(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()
			desc, err := comps.Describer.DescribePose(cmd.Context(), img)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), desc)
			return nil
		},
	}
}

// recordHistory stores outputs when a database is configured; failures are
// reported but do not fail the command that produced them.
func recordHistory(cmd *cobra.Command, comps *bootstrap.Components, mode, prompt string, outputs []history.Output) {
	if comps.Pool == nil || comps.History == nil || len(outputs) == 0 {
		return
	}
	res, err := comps.History.Record(cmd.Context(), history.RecordRequest{Mode: mode, Prompt: prompt, Outputs: outputs})
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "history: %v\n", err)
	}
	if res != nil {
		for _, s := range res.Skipped {
			fmt.Fprintf(cmd.ErrOrStderr(), "history: output %d skipped: %s\n", s.Index, s.Reason)
		}
	}
}
