package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/bryanchriswhite/capshim/internal/imgcodec"
	"github.com/spf13/cobra"
)

var (
	captureOut    string
	captureFormat string
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run one capture and write the image",
	Long: `Run one capture exactly as the monitored application would: a fresh
capture on an allowed workspace, the cached snapshot elsewhere, and a fresh
capture when no snapshot exists yet.`,
	Example: `  # Write the image to a file
  capshim capture --out shot.png

  # Stream a JPEG to stdout
  capshim capture --out - --format jpeg > shot.jpg`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().StringVarP(&captureOut, "out", "o", "capture.png", "output file, - for stdout")
	captureCmd.Flags().StringVarP(&captureFormat, "format", "f", "png", "output format (png, jpeg, bmp, tiff)")
}

func runCapture(cmd *cobra.Command, args []string) error {
	if !imgcodec.Supported(captureFormat) {
		return fmt.Errorf("unsupported format: %s (use png, jpeg, bmp or tiff)", captureFormat)
	}

	a, _, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Capture.Capture(cmd.Context())
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if captureOut != "-" {
		f, err := os.Create(captureOut)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := imgcodec.Encode(w, res.Image, captureFormat); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}

	if captureOut != "-" {
		b := res.Image.Bounds()
		fmt.Printf("Captured %dx%d (%s) to %s\n", b.Dx(), b.Dy(), res.Phase, captureOut)
	}
	return nil
}
