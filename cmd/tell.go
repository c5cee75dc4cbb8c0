package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mvdan/xurls"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/picturebook/internal/config"
	"github.com/lehigh-university-libraries/picturebook/internal/models"
	"github.com/lehigh-university-libraries/picturebook/internal/pipeline"
)

type storyFlags struct {
	style       string
	length      int
	lightweight bool
}

func newTellCmd(opts *rootOptions) *cobra.Command {
	flags := &storyFlags{}

	cmd := &cobra.Command{
		Use:   "tell <path|url>",
		Short: "Caption one image and print a story",
		Example: `  picturebook tell photo.jpg --style fable --length 100
  picturebook tell https://example.com/cat.png --lightweight`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, app, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			req, err := buildRequest(args[0], flags)
			if err != nil {
				return err
			}
			result, err := app.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.style, "style", "s", string(models.DefaultStyle), "Story style (adventure, heartwarming, suspense, scifi, fable)")
	cmd.Flags().IntVarP(&flags.length, "length", "l", config.DefaultStoryLength, "Story length in tokens (50-300, step 50)")
	cmd.Flags().BoolVar(&flags.lightweight, "lightweight", false, "Use the lightweight models")

	return cmd
}

// buildRequest treats target as a URL when it looks like one and a file
// path otherwise.
func buildRequest(target string, flags *storyFlags) (pipeline.Request, error) {
	req := pipeline.Request{
		Style:       flags.style,
		Length:      flags.length,
		Lightweight: flags.lightweight,
	}
	if url := xurls.Strict.FindString(target); url != "" && url == target {
		req.URL = url
		return req, nil
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return req, fmt.Errorf("failed to read image: %w", err)
	}
	req.Image = data
	req.Filename = filepath.Base(target)
	return req, nil
}

func printResult(w io.Writer, result *pipeline.Result) {
	fmt.Fprintf(w, "Image:   %s, %dx%d\n", result.Image.Format, result.Image.Width, result.Image.Height)
	fmt.Fprintf(w, "Caption: %s (%s/%s)\n\n", result.Caption.Text, result.Caption.Provider, result.Caption.Model)
	fmt.Fprintf(w, "%s\n\n", result.Story.Text)
	fmt.Fprintf(w, "Style %s, target %d tokens, %s/%s\n", result.Story.Style.Label(), result.Story.TargetLength, result.Story.Provider, result.Story.Model)
}
