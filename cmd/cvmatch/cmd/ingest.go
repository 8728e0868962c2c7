package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/services"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest DIR|FILE...",
	Short: "Store CVs in the library so they can be matched later",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths, err := collectCVPaths(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no .pdf or .docx files found in %v", args)
	}

	a, zlog, err := build(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var failed int
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err == nil {
			_, err = a.Library.Ingest(ctx, filepath.Base(p), content)
		}
		if err != nil {
			failed++
			zlog.Warn("ingest failed", zap.String("path", p), zap.Error(err))
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", p)
	}

	zlog.Info("ingest finished", zap.Int("stored", len(paths)-failed), zap.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}

// collectCVPaths expands directories (non-recursively) to their PDF and DOCX files.
func collectCVPaths(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			switch services.NormalizeExt(e.Name()) {
			case ".pdf", ".docx":
				out = append(out, filepath.Join(arg, e.Name()))
			}
		}
	}
	return out, nil
}
