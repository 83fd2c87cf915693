package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"studio/internal/history"
	"studio/internal/media"
	"studio/internal/storage"
)

func newVideoCommand() *cobra.Command {
	video := &cobra.Command{
		Use:   "video",
		Short: "Video generation",
	}
	generate := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate a short video from a prompt and optional first frame",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imagePath, _ := cmd.Flags().GetString("image")
			out, _ := cmd.Flags().GetString("out")
			prompt := strings.Join(args, " ")

			var image *media.ImageAsset
			if imagePath != "" {
				asset, err := readImage(imagePath)
				if err != nil {
					return err
				}
				image = &asset
			}
			comps, err := build(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()

			fmt.Fprintln(cmd.ErrOrStderr(), "generating video, this can take several minutes...")
			data, err := comps.Videos.Generate(cmd.Context(), prompt, image)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			recordHistory(cmd, comps, "video", prompt, []history.Output{history.VideoOutput(data)})
			return nil
		},
	}
	generate.Flags().String("image", "", "First frame image")
	generate.Flags().String("out", "video.mp4", "Output file")
	video.AddCommand(generate)
	return video
}

func newImagesCommand() *cobra.Command {
	images := &cobra.Command{
		Use:   "images",
		Short: "Text to image generation",
	}
	generate := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate images from a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _ := cmd.Flags().GetInt("n")
			aspect, _ := cmd.Flags().GetString("aspect")
			outDir, _ := cmd.Flags().GetString("out")
			prompt := strings.Join(args, " ")

			comps, err := build(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()

			imgs, err := comps.Images.GenerateImages(cmd.Context(), prompt, n, aspect)
			if err != nil {
				return err
			}
			outputs := make([]history.Output, 0, len(imgs))
			for i, img := range imgs {
				path, err := writeFile(outDir, fmt.Sprintf("image_%d%s", i+1, storage.ExtensionFor(img.MIMEType)), img.Data)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				outputs = append(outputs, history.ImageOutput(img))
			}
			recordHistory(cmd, comps, "generate", prompt, outputs)
			return nil
		},
	}
	generate.Flags().IntP("n", "n", 1, "Number of images (max 4)")
	generate.Flags().String("aspect", "1:1", "Aspect ratio: 1:1, 3:4, 4:3, 9:16 or 16:9")
	generate.Flags().String("out", "images", "Output directory")
	images.AddCommand(generate)
	return images
}
