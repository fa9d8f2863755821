package cmd

import (
	"fmt"

	"github.com/scanhelper/scanhelper/internal/ocr"
	"github.com/spf13/cobra"
)

func newTranscribeCmd(root *rootOptions) *cobra.Command {
	opts := &solveOptions{}

	cmd := &cobra.Command{
		Use:   "transcribe <image-path-or-url>",
		Short: "Print the problem text read from an image",
		Long: `Uses the configured vision model as OCR and prints the problem statement
without solving it. Accepts the same --crop and --frame flags as solve.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			provider, err := newProvider(cfg)
			if err != nil {
				return err
			}
			img, err := loadSolveImage(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			text, err := ocr.NewService(provider, cfg.Model).ExtractText(cmd.Context(), img)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.crop, "crop", "", "Crop rectangle x,y,width,height in display space")
	cmd.Flags().StringVar(&opts.frame, "frame", "", "Display frame x,y,width,height the image was shown in")

	return cmd
}
