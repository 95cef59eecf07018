package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/analytica/internal/app"
	"github.com/JakeFAU/analytica/internal/classifier"
	"github.com/JakeFAU/analytica/internal/config"
	"github.com/JakeFAU/analytica/internal/hash/sha256"
	"github.com/JakeFAU/analytica/internal/preprocess"
)

// labeler prepares and labels ad-hoc text without a browser.
type labeler interface {
	Prepare(ctx context.Context, text string) preprocess.Prepared
	Classify(ctx context.Context, d classifier.Dimension, text string) (string, error)
}

type stageLabeler struct {
	*preprocess.Stage
	*classifier.Registry
}

var newLabeler = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (labeler, func() error, error) {
	stage, closeFn, err := app.NewPreprocessStage(ctx, cfg, sha256.New(), logger)
	if err != nil {
		return nil, nil, err
	}
	return stageLabeler{Stage: stage, Registry: app.NewClassifierRegistry(cfg, logger)}, closeFn, nil
}

// classification is one labeled text in classify output.
type classification struct {
	Text         string            `json:"text"`
	Language     string            `json:"language"`
	AnalysisText string            `json:"analysis_text,omitempty"`
	Labels       map[string]string `json:"labels"`
	Unavailable  []string          `json:"unavailable,omitempty"`
}

// newClassifyCmd creates the 'classify' subcommand.
func newClassifyCmd() *cobra.Command {
	var (
		dims   []string
		output string
	)
	cmd := &cobra.Command{
		Use:   "classify TEXT...",
		Short: "Label ad-hoc text without collecting",
		Long: `Runs each argument through language detection, optional translation and
the selected classifiers. Useful for checking the model sidecars.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd, args, dims, output)
		},
	}
	cmd.Flags().StringSliceVarP(&dims, "dimension", "d", nil,
		"dimensions to label: sentiment, toxicity, emotion or combined (default all)")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format: table or json")
	return cmd
}

func runClassify(cmd *cobra.Command, texts, rawDims []string, output string) error {
	rt, err := runtimeFrom(cmd.Context())
	if err != nil {
		return err
	}
	dims, err := parseDimensionFlag(rawDims)
	if err != nil {
		return usageError(cmd, err)
	}
	if err := checkOutput(output); err != nil {
		return usageError(cmd, err)
	}

	lab, closeFn, err := newLabeler(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil {
			rt.logger.Warn("failed to close translation cache", zap.Error(cerr))
		}
	}()

	results := make([]classification, 0, len(texts))
	for _, raw := range texts {
		normalized := preprocess.Normalize(raw)
		prepared := lab.Prepare(cmd.Context(), normalized)
		c := classification{
			Text:     raw,
			Language: prepared.Language,
			Labels:   make(map[string]string, len(dims)),
		}
		if prepared.Translated {
			c.AnalysisText = prepared.AnalysisText
		}
		for _, d := range dims {
			label, err := lab.Classify(cmd.Context(), d, prepared.AnalysisText)
			switch {
			case err == nil:
				c.Labels[string(d)] = label
			case errors.Is(err, classifier.ErrModelUnavailable):
				rt.logger.Warn("model unavailable", zap.String("dimension", string(d)), zap.Error(err))
				c.Unavailable = append(c.Unavailable, string(d))
			default:
				return fmt.Errorf("classify %s: %w", d, err)
			}
		}
		results = append(results, c)
	}

	if output == outputJSON {
		return writeJSON(cmd.OutOrStdout(), results)
	}
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	header := table.Row{"Text", "Lang"}
	for _, d := range dims {
		header = append(header, string(d))
	}
	t.AppendHeader(header)
	for _, c := range results {
		row := table.Row{c.Text, c.Language}
		for _, d := range dims {
			label, ok := c.Labels[string(d)]
			if !ok {
				label = "n/a"
			}
			row = append(row, label)
		}
		t.AppendRow(row)
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Name: "Text", WidthMax: textWidth}})
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}
