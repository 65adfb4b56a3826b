package compare

import (
	"strings"

	"github.com/versevox/versevox/pkg/core/types"
)

// parseResponse splits a model response into its spoken summary and table.
//
// The parser is fail-soft: any missing or malformed table segment yields a
// nil table and the best available spoken text. It never returns an error.
// A returned table always has exactly one column per requested source, in
// request order, regardless of the column order the model produced.
func parseResponse(raw string, sourceIDs []string) (string, *types.Table) {
	spokenText, tableText := splitSegments(raw)

	spoken := strings.TrimSpace(spokenText)
	table := parseTable(tableText, sourceIDs)

	if spoken == "" && table == nil {
		// Nothing recognizable; treat the whole response as spoken.
		spoken = strings.TrimSpace(raw)
	}
	return spoken, table
}

// splitSegments locates the [SPOKEN] and [TABLE] markers on their own lines.
// Text before an absent [SPOKEN] marker counts as spoken.
func splitSegments(raw string) (spoken, table string) {
	lines := strings.Split(raw, "\n")

	section := "spoken"
	var spokenLines, tableLines []string
	for _, line := range lines {
		switch strings.TrimSpace(line) {
		case spokenMarker:
			section = "spoken"
			continue
		case tableMarker:
			section = "table"
			continue
		}
		if section == "table" {
			tableLines = append(tableLines, line)
		} else {
			spokenLines = append(spokenLines, line)
		}
	}
	return strings.Join(spokenLines, "\n"), strings.Join(tableLines, "\n")
}

// parseTable parses a pipe-delimited table and normalizes its columns to the
// requested source order. Returns nil when no usable table exists.
func parseTable(text string, sourceIDs []string) *types.Table {
	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isSeparatorRow(line) {
			continue
		}
		if !strings.Contains(line, "|") {
			continue
		}
		cells := splitRow(line)
		if len(cells) < 2 {
			continue
		}
		rows = append(rows, cells)
	}
	if len(rows) < 2 {
		// Need a header plus at least one data row.
		return nil
	}

	// Map each requested source to the model's column position. Header
	// cells may carry ids in any order; unknown columns are ignored.
	header := rows[0]
	colFor := make(map[string]int, len(sourceIDs))
	for pos, cell := range header[1:] {
		id := strings.TrimSpace(strings.ToLower(cell))
		colFor[id] = pos + 1
	}

	matched := 0
	for _, id := range sourceIDs {
		if _, ok := colFor[strings.ToLower(id)]; ok {
			matched++
		}
	}
	if matched == 0 {
		return nil
	}

	table := &types.Table{Columns: append([]string(nil), sourceIDs...)}
	for _, row := range rows[1:] {
		out := types.TableRow{
			Reference: row[0],
			Cells:     make([]string, len(sourceIDs)),
		}
		for i, id := range sourceIDs {
			out.Cells[i] = EmptyCell
			pos, ok := colFor[strings.ToLower(id)]
			if !ok || pos >= len(row) {
				continue
			}
			if cell := strings.TrimSpace(row[pos]); cell != "" {
				out.Cells[i] = cell
			}
		}
		table.Rows = append(table.Rows, out)
	}
	if len(table.Rows) == 0 {
		return nil
	}
	return table
}

// splitRow splits a pipe row into trimmed cells, tolerating leading and
// trailing pipes.
func splitRow(line string) []string {
	line = strings.Trim(line, "|")
	parts := strings.Split(line, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

// isSeparatorRow reports markdown separator rows like |---|---|.
func isSeparatorRow(line string) bool {
	trimmed := strings.Trim(line, "| ")
	if trimmed == "" {
		return false
	}
	for _, r := range trimmed {
		switch r {
		case '-', ':', '|', ' ':
		default:
			return false
		}
	}
	return true
}
