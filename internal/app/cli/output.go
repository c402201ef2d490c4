package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/jinford/codebase-rag/internal/core/project"
)

// OutputFormat は一覧系コマンドの出力形式
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// ParseOutputFormat は --format の値を解釈する（空は table）
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("未対応の出力形式です: %q (table, json, yaml のいずれか)", s)
	}
}

// projectRow は出力用のプロジェクト表現
type projectRow struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	SourceType  string `json:"source_type" yaml:"source_type"`
	SourceURL   string `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	FileCount   int    `json:"file_count" yaml:"file_count"`
	TotalChunks int    `json:"total_chunks" yaml:"total_chunks"`
	CreatedAt   string `json:"created_at" yaml:"created_at"`
}

func toProjectRow(p *project.Project) projectRow {
	row := projectRow{
		ID:          p.ID.String(),
		Name:        p.Name,
		SourceType:  string(p.SourceKind),
		FileCount:   p.FileCount,
		TotalChunks: p.TotalChunks,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
	}
	if p.Description != nil {
		row.Description = *p.Description
	}
	if p.SourceURL != nil {
		row.SourceURL = *p.SourceURL
	}
	return row
}

// WriteProjects はプロジェクト一覧を指定形式で出力する
func WriteProjects(w io.Writer, format OutputFormat, projects []*project.Project) error {
	rows := make([]projectRow, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, toProjectRow(p))
	}

	switch format {
	case FormatJSON:
		return writeJSON(w, rows)
	case FormatYAML:
		return writeYAML(w, rows)
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Name", "Source", "Files", "Chunks", "Created At")
	for _, r := range rows {
		source := r.SourceType
		if r.SourceURL != "" {
			source = r.SourceURL
		}
		if err := table.Append(
			r.ID,
			r.Name,
			source,
			strconv.Itoa(r.FileCount),
			strconv.Itoa(r.TotalChunks),
			r.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	return table.Render()
}

// WriteSummary は取り込み結果を指定形式で出力する
func WriteSummary(w io.Writer, format OutputFormat, summary *project.IngestSummary) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, summary)
	case FormatYAML:
		return writeYAML(w, map[string]any{
			"project_id":   summary.ProjectID.String(),
			"name":         summary.Name,
			"file_count":   summary.FileCount,
			"total_chunks": summary.TotalChunks,
			"message":      summary.Message,
		})
	}

	table := tablewriter.NewWriter(w)
	table.Header("Key", "Value")
	for _, kv := range [][2]string{
		{"project_id", summary.ProjectID.String()},
		{"name", summary.Name},
		{"file_count", strconv.Itoa(summary.FileCount)},
		{"total_chunks", strconv.Itoa(summary.TotalChunks)},
		{"message", summary.Message},
	} {
		if err := table.Append(kv[0], kv[1]); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	return table.Render()
}

// WriteAnswer は回答と参照ファイルを出力する
func WriteAnswer(w io.Writer, reply string, files []string) {
	fmt.Fprintln(w, reply)
	if len(files) == 0 {
		return
	}
	fmt.Fprintln(w, "\n--- 参照ファイル ---")
	for i, f := range files {
		fmt.Fprintf(w, "[%d] %s\n", i+1, f)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}
