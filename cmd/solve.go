package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/scanhelper/scanhelper/internal/config"
	"github.com/scanhelper/scanhelper/internal/crop"
	"github.com/scanhelper/scanhelper/internal/geometry"
	"github.com/scanhelper/scanhelper/internal/identity"
	"github.com/scanhelper/scanhelper/internal/images"
	"github.com/scanhelper/scanhelper/internal/render"
	"github.com/scanhelper/scanhelper/internal/solution"
	"github.com/scanhelper/scanhelper/internal/store"
	"github.com/spf13/cobra"
)

type solveOptions struct {
	crop      string
	frame     string
	subject   string
	bookmark  bool
	noSave    bool
	saveImage string
	htmlOut   string
}

func newSolveCmd(root *rootOptions) *cobra.Command {
	opts := &solveOptions{}

	cmd := &cobra.Command{
		Use:   "solve <image-path-or-url>",
		Short: "Stream a solution for a photographed problem",
		Long: `Sends a problem image to the configured LLM and prints the solution as it
streams in. Press Ctrl+C to stop generation.

With --crop and --frame the image is first cropped: both are x,y,width,height
rectangles in the same display space, where frame is the area the image was
shown in (aspect-fit) and crop is the selection drawn over it.`,
		Example: `  # Solve a local photo
  scanhelper solve problem.jpg

  # Crop to a selection made on a 390x844 screen
  scanhelper solve problem.jpg --frame 0,0,390,844 --crop 40,300,310,200

  # Use Gemini and bookmark the result
  scanhelper solve https://example.com/problem.png --provider gemini --bookmark`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			return runSolve(cmd.Context(), cfg, args[0], opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.crop, "crop", "", "Crop rectangle x,y,width,height in display space")
	cmd.Flags().StringVar(&opts.frame, "frame", "", "Display frame x,y,width,height the image was shown in")
	cmd.Flags().StringVarP(&opts.subject, "subject", "s", config.DefaultSubject, "Prompt preset to use")
	cmd.Flags().BoolVar(&opts.bookmark, "bookmark", false, "Bookmark the solution when it completes")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "Do not save the solution to history")
	cmd.Flags().StringVar(&opts.saveImage, "save-image", "", "Write the (cropped) image sent to the model to this path")
	cmd.Flags().StringVar(&opts.htmlOut, "html", "", "Also write the solution as an HTML page to this path")

	return cmd
}

func runSolve(ctx context.Context, cfg *config.Config, source string, opts *solveOptions, out io.Writer) error {
	preset, ok := cfg.Prompts.Get(opts.subject)
	if !ok {
		return fmt.Errorf("unknown subject %q (available: %s)", opts.subject, strings.Join(cfg.Prompts.Subjects(), ", "))
	}
	if opts.bookmark && opts.noSave {
		return fmt.Errorf("--bookmark cannot be combined with --no-save")
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}
	deviceID, err := identity.LoadOrCreate(cfg.DataDir)
	if err != nil {
		return err
	}

	img, err := loadSolveImage(ctx, source, opts)
	if err != nil {
		return err
	}
	if opts.saveImage != "" {
		if err := os.WriteFile(opts.saveImage, img.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write image: %w", err)
		}
	}

	var persister solution.Persister
	if !opts.noSave {
		repo, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return err
		}
		defer repo.Close()
		persister = repo
	}

	session := solution.New(solution.Options{
		Provider:    provider,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		Prompt:      preset,
		DeviceID:    deviceID,
		Persister:   persister,
	})
	defer session.Close()

	events, unsubscribe := session.Subscribe()
	defer unsubscribe()
	if err := session.Start(ctx, img); err != nil {
		return err
	}

	runErr := printSolution(out, events)
	session.Wait()
	if runErr != nil {
		return runErr
	}

	if opts.htmlOut != "" {
		page, err := render.New().Document("Solution", session.Transcript().AssistantText(), img.DataURI())
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.htmlOut, page, 0o644); err != nil {
			return fmt.Errorf("failed to write HTML: %w", err)
		}
	}

	if opts.bookmark {
		if err := session.OnBookmarkToggled(context.WithoutCancel(ctx), true); err != nil {
			return err
		}
		fmt.Fprintln(out, "Bookmarked.")
	}
	return nil
}

// printSolution writes deltas as they arrive and returns when the run ends.
func printSolution(out io.Writer, events <-chan solution.Event) error {
	for ev := range events {
		switch ev.Type {
		case solution.EventDelta:
			fmt.Fprint(out, ev.Delta)
		case solution.EventDone:
			fmt.Fprintln(out)
			return nil
		case solution.EventCancelled:
			fmt.Fprintln(out)
			return context.Canceled
		case solution.EventError:
			fmt.Fprintln(out)
			return errors.New(ev.Error)
		}
	}
	return errors.New("event stream closed before the solution finished")
}

func loadSolveImage(ctx context.Context, source string, opts *solveOptions) (images.Image, error) {
	var (
		raw images.Image
		err error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		raw, err = images.NewFetcher().Fetch(ctx, source)
	} else {
		raw, err = images.FromFile(source)
	}
	if err != nil {
		return images.Image{}, err
	}
	img, err := images.Normalize(raw.Data)
	if err != nil {
		return images.Image{}, err
	}

	if opts.crop == "" && opts.frame == "" {
		return img, nil
	}
	if opts.crop == "" || opts.frame == "" {
		return images.Image{}, fmt.Errorf("--crop and --frame must be given together")
	}
	cropRect, err := parseRect(opts.crop)
	if err != nil {
		return images.Image{}, fmt.Errorf("invalid --crop: %w", err)
	}
	frame, err := parseRect(opts.frame)
	if err != nil {
		return images.Image{}, fmt.Errorf("invalid --frame: %w", err)
	}

	if region, err := geometry.MapDisplayRectToImageRect(cropRect, frame, img.Size()); err == nil {
		slog.Info("Crop region", "pixels", region.String(), "image_width", img.Width, "image_height", img.Height)
	}
	cropped, ok := crop.NewExecutor().Apply(img, cropRect, frame)
	if !ok {
		slog.Warn("Sending the whole image")
	}
	return cropped, nil
}

// parseRect parses "x,y,width,height".
func parseRect(s string) (geometry.Rect, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return geometry.Rect{}, fmt.Errorf("want x,y,width,height, got %q", s)
	}
	var v [4]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return geometry.Rect{}, fmt.Errorf("invalid number %q: %w", f, err)
		}
		v[i] = n
	}
	return geometry.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}
