package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/medassist/internal/apierr"
	"github.com/fpang/medassist/internal/cli"
	"github.com/fpang/medassist/internal/imagereduce"
	"github.com/fpang/medassist/internal/medapi"
	"github.com/fpang/medassist/internal/transport"
)

var (
	noStoreFlag  bool
	noReduceFlag bool
	outputFlag   string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze IMAGE",
	Short: "Diagnose a medical image",
	Long: `Shrinks the image, uploads it for analysis, and prints the diagnosis.

When signed in, the result is saved to your records unless --no-store is
given. Signed-out analysis is not saved.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var reduceCmd = &cobra.Command{
	Use:   "reduce IMAGE",
	Short: "Shrink an image the way analyze does before upload",
	Args:  cobra.ExactArgs(1),
	RunE:  runReduce,
}

func init() {
	analyzeCmd.Flags().BoolVar(&noStoreFlag, "no-store", false, "Analyse without saving a record")
	analyzeCmd.Flags().BoolVar(&noReduceFlag, "no-reduce", false, "Upload the original image unchanged")
	reduceCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Where to write the reduced image (default <name>-reduced.jpg)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path, err := cli.ValidateImageFile(args[0])
	if err != nil {
		return err
	}

	upload := path
	if !noReduceFlag {
		outcome, apiErr := reduce(ctx, path)
		if apiErr != nil {
			return apiErr
		}
		if outcome.Reduced() {
			defer os.Remove(outcome.Artifact.Path)
		}
		upload = outcome.Artifact.Path
	}

	store := !noStoreFlag && clients.Session.Authenticated()
	if !store {
		d, err := call(ctx, func() transport.Result[medapi.Diagnosis] { return clients.Med.Analyze(ctx, upload) })
		if err != nil {
			return err
		}
		if jsonFlag {
			return printJSON(d)
		}
		cli.PrintDiagnosis(cmd.OutOrStdout(), d, language())
		return nil
	}

	rec, err := call(ctx, func() transport.Result[medapi.Record] { return clients.Med.AnalyzeAndStore(ctx, upload) })
	if err != nil {
		return err
	}
	if jsonFlag {
		return printJSON(rec)
	}
	cli.PrintDiagnosis(cmd.OutOrStdout(), rec.Diagnosis, language())
	fmt.Fprintf(cmd.OutOrStdout(), "\nSaved as record %s\n", rec.ID)
	return nil
}

func runReduce(cmd *cobra.Command, args []string) error {
	path, err := cli.ValidateImageFile(args[0])
	if err != nil {
		return err
	}
	outcome, apiErr := reduce(cmd.Context(), path)
	if apiErr != nil {
		return apiErr
	}

	out := cmd.OutOrStdout()
	if jsonFlag {
		defer removeIfReduced(outcome)
		return printJSON(outcome)
	}
	for i, p := range outcome.Passes {
		status := "kept"
		if !p.Kept {
			status = "discarded"
		}
		fmt.Fprintf(out, "pass %d: width %d, quality %.2f -> %s (%s)\n",
			i+1, p.Params.Width, p.Params.Quality, cli.FormatBytes(p.Size), status)
	}
	if !outcome.Reduced() {
		fmt.Fprintf(out, "%s left unchanged (%s)\n", path, cli.FormatBytes(outcome.Original.Size))
		return nil
	}

	dest := outputFlag
	if dest == "" {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		dest = filepath.Join(filepath.Dir(path), base+"-reduced.jpg")
	}
	if err := moveFile(outcome.Artifact.Path, dest); err != nil {
		removeIfReduced(outcome)
		return apierr.ImageProcessing(err)
	}
	fmt.Fprintf(out, "%s -> %s (%s -> %s, target %s)\n", path, dest,
		cli.FormatBytes(outcome.Original.Size), cli.FormatBytes(outcome.Artifact.Size), cli.FormatBytes(outcome.Target))
	return nil
}

func reduce(ctx context.Context, path string) (imagereduce.Outcome, *apierr.Error) {
	outcome, apiErr := imagereduce.New(imagereduce.JPEGTransform(os.TempDir())).Reduce(ctx, path)
	if apiErr != nil {
		return outcome, apiErr
	}
	log.Info().
		Str("path", path).
		Int64("originalBytes", outcome.Original.Size).
		Int64("finalBytes", outcome.Artifact.Size).
		Int("passes", len(outcome.Passes)).
		Bool("withinTarget", outcome.WithinTarget()).
		Msg("Image reduced")
	return outcome, nil
}

func removeIfReduced(o imagereduce.Outcome) {
	if o.Reduced() {
		os.Remove(o.Artifact.Path)
	}
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
