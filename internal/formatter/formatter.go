// package formatter exports run reports to various formats (JSON, CSV, Markdown, XLSX)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/desertthunder/witx/internal/models"
)

// Format names an export format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatXLSX     Format = "xlsx"
)

const (
	recordsSheet = "Records"
	linksSheet   = "Links"
)

var (
	recordHeaders = []string{"Source ID", "Type", "Title", "Dest ID", "Dest URL", "Status", "Error"}
	linkHeaders   = []string{"Source ID", "Target ID", "From Dest", "To Dest", "Status", "Error"}
)

// ParseFormat resolves an explicit format name, falling back to the extension of path.
func ParseFormat(name, path string) (Format, error) {
	if name == "" {
		name = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}

	switch strings.ToLower(name) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "":
		return "", fmt.Errorf("report format is required when %q has no extension", path)
	default:
		return "", fmt.Errorf("unsupported report format %q", name)
	}
}

type runJSON struct {
	ID           string     `json:"id"`
	Sequence     int        `json:"sequence"`
	Source       endpoint   `json:"source"`
	Dest         endpoint   `json:"destination"`
	LinkStrategy string     `json:"link_strategy"`
	Status       string     `json:"status"`
	Records      counts     `json:"records"`
	Links        counts     `json:"links"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

type endpoint struct {
	URL     string `json:"url"`
	Project string `json:"project"`
}

type counts struct {
	Total  int `json:"total"`
	Done   int `json:"done"`
	Failed int `json:"failed"`
}

type recordJSON struct {
	SourceID int    `json:"source_id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	DestID   int    `json:"dest_id,omitempty"`
	DestURL  string `json:"dest_url,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

type linkJSON struct {
	SourceID int    `json:"source_id"`
	TargetID int    `json:"target_id"`
	FromDest int    `json:"from_dest_id,omitempty"`
	ToDest   int    `json:"to_dest_id,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

type reportJSON struct {
	Run     runJSON      `json:"run"`
	Records []recordJSON `json:"records"`
	Links   []linkJSON   `json:"links"`
}

// ExportToJSON converts a RunReport to indented JSON
func ExportToJSON(report *models.RunReport) ([]byte, error) {
	if report == nil || report.Run == nil {
		return nil, fmt.Errorf("report has no run")
	}

	run := report.Run
	out := reportJSON{
		Run: runJSON{
			ID:           run.ID(),
			Sequence:     run.Sequence(),
			Source:       endpoint{URL: run.Source().URL, Project: run.Source().Project},
			Dest:         endpoint{URL: run.Dest().URL, Project: run.Dest().Project},
			LinkStrategy: run.LinkStrategy(),
			Status:       string(run.Status()),
			Records:      counts{Total: run.RecordsTotal(), Done: run.RecordsCopied(), Failed: run.RecordsFailed()},
			Links:        counts{Total: run.LinksTotal(), Done: run.LinksCreated(), Failed: run.LinksFailed()},
			Error:        run.ErrorMessage(),
			StartedAt:    run.StartedAt(),
			CompletedAt:  run.CompletedAt(),
		},
		Records: make([]recordJSON, 0, len(report.Records)),
		Links:   make([]linkJSON, 0, len(report.Links)),
	}

	for _, r := range report.Records {
		out.Records = append(out.Records, recordJSON{
			SourceID: r.SourceID, Type: r.SourceType, Title: r.Title,
			DestID: r.DestID, DestURL: r.DestURL, Status: r.Status, Error: r.Error,
		})
	}
	for _, l := range report.Links {
		out.Links = append(out.Links, linkJSON{
			SourceID: l.SourceID, TargetID: l.TargetID, FromDest: l.FromDest,
			ToDest: l.ToDest, Status: l.Status, Error: l.Error,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return append(data, '\n'), nil
}

// ExportToCSV converts a RunReport to CSV.
//
// Records and relations share one table, distinguished by the leading Kind column.
func ExportToCSV(report *models.RunReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Kind", "Source ID", "Target ID", "Type", "Title", "Dest ID", "Dest URL", "Status", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range report.Records {
		row := []string{
			"record",
			strconv.Itoa(r.SourceID),
			"",
			r.SourceType,
			r.Title,
			optionalInt(r.DestID),
			r.DestURL,
			r.Status,
			r.Error,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	for _, l := range report.Links {
		row := []string{
			"relation",
			strconv.Itoa(l.SourceID),
			strconv.Itoa(l.TargetID),
			"",
			"",
			linkDest(l),
			"",
			l.Status,
			l.Error,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a RunReport to a Markdown summary with record and relation tables
func ExportToMarkdown(report *models.RunReport) ([]byte, error) {
	if report == nil || report.Run == nil {
		return nil, fmt.Errorf("report has no run")
	}

	var buf bytes.Buffer
	run := report.Run

	fmt.Fprintf(&buf, "# Migration run %d\n\n", run.Sequence())
	fmt.Fprintf(&buf, "**Source**: %s (%s)\n", run.Source().Project, run.Source().URL)
	fmt.Fprintf(&buf, "**Destination**: %s (%s)\n", run.Dest().Project, run.Dest().URL)
	fmt.Fprintf(&buf, "**Link strategy**: %s\n", run.LinkStrategy())
	fmt.Fprintf(&buf, "**Status**: %s\n", run.Status())
	fmt.Fprintf(&buf, "**Records**: %d copied, %d failed of %d\n", run.RecordsCopied(), run.RecordsFailed(), run.RecordsTotal())
	fmt.Fprintf(&buf, "**Relations**: %d linked, %d failed of %d\n", run.LinksCreated(), run.LinksFailed(), run.LinksTotal())
	if msg := run.ErrorMessage(); msg != "" {
		fmt.Fprintf(&buf, "**Error**: %s\n", msg)
	}

	buf.WriteString("\n## Records\n\n")
	buf.WriteString("| Source | Type | Title | Destination | Status | Error |\n")
	buf.WriteString("|---|---|---|---|---|---|\n")
	for _, r := range report.Records {
		fmt.Fprintf(&buf, "| %d | %s | %s | %s | %s | %s |\n",
			r.SourceID, cell(r.SourceType), cell(r.Title), optionalInt(r.DestID), r.Status, cell(r.Error))
	}

	buf.WriteString("\n## Relations\n\n")
	if len(report.Links) == 0 {
		buf.WriteString("No relations.\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("| Source | Target | Destination | Status | Error |\n")
	buf.WriteString("|---|---|---|---|---|\n")
	for _, l := range report.Links {
		fmt.Fprintf(&buf, "| %d | %d | %s | %s | %s |\n",
			l.SourceID, l.TargetID, linkDest(l), l.Status, cell(l.Error))
	}

	return buf.Bytes(), nil
}

// WriteXLSX writes a RunReport to an Excel workbook with "Records" and "Links" sheets
func WriteXLSX(report *models.RunReport, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", recordsSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(linksSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	records := make([][]any, 0, len(report.Records))
	for _, r := range report.Records {
		records = append(records, []any{r.SourceID, r.SourceType, r.Title, r.DestID, r.DestURL, r.Status, r.Error})
	}
	if err := writeSheet(f, recordsSheet, recordHeaders, records, 22); err != nil {
		return err
	}

	links := make([][]any, 0, len(report.Links))
	for _, l := range report.Links {
		links = append(links, []any{l.SourceID, l.TargetID, l.FromDest, l.ToDest, l.Status, l.Error})
	}
	if err := writeSheet(f, linksSheet, linkHeaders, links, 16); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any, width float64) error {
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to write %s header: %w", sheet, err)
		}
	}

	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, r+2, err)
		}
	}

	for i := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("failed to size %s columns: %w", sheet, err)
		}
	}
	return nil
}

// WriteReport writes a RunReport to path in the given format.
func WriteReport(report *models.RunReport, format Format, path string) error {
	if report == nil || report.Run == nil {
		return fmt.Errorf("report has no run")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	var (
		data []byte
		err  error
	)

	switch format {
	case FormatJSON:
		data, err = ExportToJSON(report)
	case FormatCSV:
		data, err = ExportToCSV(report)
	case FormatMarkdown:
		data, err = ExportToMarkdown(report)
	case FormatXLSX:
		return WriteXLSX(report, path)
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func optionalInt(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func linkDest(l *models.RelationLink) string {
	if l.FromDest <= 0 || l.ToDest <= 0 {
		return ""
	}
	return fmt.Sprintf("%d -> %d", l.FromDest, l.ToDest)
}

// cell escapes pipes and newlines for a Markdown table cell
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
