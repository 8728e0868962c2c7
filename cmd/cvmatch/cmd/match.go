package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/models"
	"alfredoptarigan/cv-matcher/internal/services"
)

var matchCmd = &cobra.Command{
	Use:   "match [flags] FILE...",
	Short: "Rank CV files (or the stored library) against a job description",
	RunE:  runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringP("job-description", "j", "", "job description text")
	matchCmd.Flags().StringP("job-file", "f", "", "read the job description from a .txt, .pdf or .docx file")
	matchCmd.Flags().Bool("json", false, "print the ranking as JSON")
	matchCmd.Flags().String("xlsx", "", "also write the ranking to this xlsx file")
	matchCmd.Flags().Bool("library", false, "match against the stored CV library instead of FILE arguments")
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jdText, _ := cmd.Flags().GetString("job-description")
	jdFile, _ := cmd.Flags().GetString("job-file")
	asJSON, _ := cmd.Flags().GetBool("json")
	xlsxPath, _ := cmd.Flags().GetString("xlsx")
	useLibrary, _ := cmd.Flags().GetBool("library")

	if !useLibrary && len(args) == 0 {
		return errors.New("at least one CV file is required")
	}

	a, zlog, err := build(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	jd, err := loadJobDescription(jdText, jdFile, services.NewExtractor())
	if err != nil {
		return err
	}

	var resp *models.MatchResponse
	if useLibrary {
		resp, err = a.Library.Match(ctx, jd)
	} else {
		files, readErr := readCVs(args)
		if readErr != nil {
			return readErr
		}
		resp, err = a.Pipeline.Run(ctx, jd, files)
	}
	if err != nil {
		return err
	}

	if xlsxPath != "" {
		if err := writeXLSX(xlsxPath, resp.Results); err != nil {
			return err
		}
		zlog.Info("ranking exported", zap.String("path", xlsxPath))
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	return writeTable(cmd.OutOrStdout(), resp)
}

// loadJobDescription prefers inline text; a file is read as plain text unless
// it is a PDF or DOCX.
func loadJobDescription(text, path string, extractor services.Extractor) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}
	if path == "" {
		return "", errors.New("a job description is required: use --job-description or --job-file")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading job description: %w", err)
	}

	switch services.NormalizeExt(path) {
	case ".pdf", ".docx":
		return extractor.Extract(content, path)
	default:
		return string(content), nil
	}
}

// readCVs loads every path. An unreadable file is still submitted, empty, so
// it is reported in the ranking rather than aborting the run.
func readCVs(paths []string) ([]services.UploadedFile, error) {
	files := make([]services.UploadedFile, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", p)
		}
		content, err := os.ReadFile(p)
		if err != nil {
			content = nil
		}
		files = append(files, services.UploadedFile{Filename: filepath.Base(p), Content: content})
	}
	return files, nil
}

func writeTable(w io.Writer, resp *models.MatchResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSCORE\tSTATUS\tFILE\tEXPLANATION")
	for i, r := range resp.Results {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", i+1, r.Score, r.Status, r.Filename, oneLine(r.Explanation, 100))
	}
	return tw.Flush()
}

func writeXLSX(path string, results []models.MatchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := services.ExportResultsXLSX(f, results); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}
