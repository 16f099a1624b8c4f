package tabular

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/command-center/hive/internal/model"
)

// Campaign import columns. Header names are matched case-insensitively and
// column order is free. models holds backend ids separated by ';' or '|'.
const (
	ColName           = "name"
	ColRootQuestion   = "root_question"
	ColContext        = "context"
	ColBudgetCap      = "budget_cap"
	ColExplorationCap = "exploration_cap"
	ColModels         = "models"
	ColUserID         = "user_id"
)

// ReadCampaigns parses a CSV or XLSX file of campaign definitions. The first
// row is the header; blank rows are skipped. For XLSX only the first sheet
// is read.
func ReadCampaigns(path string) ([]model.NewCampaign, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	switch f {
	case FormatCSV:
		rows, err = readCSV(path)
	case FormatXLSX:
		rows, err = readXLSX(path)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("tabular: %s has no header row", path)
	}

	cols := indexHeader(rows[0])
	for _, required := range []string{ColName, ColRootQuestion} {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("tabular: %s is missing column %q", path, required)
		}
	}

	var out []model.NewCampaign
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		nc, err := parseCampaignRow(cols, row)
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: row %d", i+2)
		}
		out = append(out, nc)
	}
	return out, nil
}

func parseCampaignRow(cols map[string]int, row []string) (model.NewCampaign, error) {
	get := func(col string) string {
		i, ok := cols[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	nc := model.NewCampaign{
		UserID:       get(ColUserID),
		Name:         get(ColName),
		RootQuestion: get(ColRootQuestion),
		Context:      get(ColContext),
		Models:       splitModels(get(ColModels)),
	}
	if nc.Name == "" || nc.RootQuestion == "" {
		return nc, eris.New("name and root_question are required")
	}

	if s := get(ColBudgetCap); s != "" {
		v, err := strconv.ParseFloat(strings.TrimPrefix(s, "$"), 64)
		if err != nil {
			return nc, eris.Wrapf(err, "budget_cap %q", s)
		}
		nc.BudgetCap = v
	}
	if s := get(ColExplorationCap); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return nc, eris.Wrapf(err, "exploration_cap %q", s)
		}
		nc.ExplorationCap = v
	}
	return nc, nil
}

func splitModels(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '|' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func indexHeader(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	return cols
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func readCSV(path string) ([][]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "tabular: open CSV")
	}
	defer fh.Close() //nolint:errcheck

	r := csv.NewReader(fh)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "tabular: read CSV")
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "tabular: open XLSX")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("tabular: %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
