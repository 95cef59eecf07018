package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/JakeFAU/analytica/internal/pipeline"
	"github.com/JakeFAU/analytica/internal/social"
)

const (
	outputTable = "table"
	outputJSON  = "json"

	textWidth = 60
)

func checkOutput(format string) error {
	switch format {
	case outputTable, outputJSON:
		return nil
	default:
		return fmt.Errorf("%w: unknown output format %q", social.ErrInvalidInput, format)
	}
}

func renderResult(w io.Writer, format string, res pipeline.Result) error {
	if format == outputJSON {
		return writeJSON(w, res)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	header := table.Row{"#", "Handle", "Posted", "Lang"}
	for _, d := range res.Dimensions {
		header = append(header, d)
	}
	header = append(header, "Text")
	t.AppendHeader(header)

	for i, p := range res.Posts {
		row := table.Row{i + 1, "@" + p.Handle, p.Timestamp, p.Language}
		for _, d := range res.Dimensions {
			row = append(row, labelCell(p, d))
		}
		row = append(row, text.Trim(p.Text, textWidth))
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d posts", len(res.Posts))})
	t.SetColumnConfigs([]table.ColumnConfig{{Name: "Text", WidthMax: textWidth}})
	t.SetStyle(table.StyleRounded)
	t.Render()

	status := string(res.Status())
	_, err := fmt.Fprintf(w, "run %s %s in %s\n", res.RunID, status,
		res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func labelCell(p social.LabeledPost, dim string) string {
	if slices.Contains(p.Unavailable, dim) {
		return "n/a"
	}
	if label, ok := p.Label(dim); ok {
		return label
	}
	return "-"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
