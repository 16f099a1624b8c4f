package tabular

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/command-center/hive/internal/model"
)

// ExplorationSheet is the sheet name used for XLSX exports.
const ExplorationSheet = "Explorations"

var explorationHeader = []string{
	"id", "question", "source_model", "claims", "confidence", "uncertainty",
	"follow_ups", "tokens_used", "cost_dollars", "predicted_value",
	"curation_status", "created_at",
}

// WriteExplorations writes one row per exploration, in order, to w.
func WriteExplorations(w io.Writer, f Format, exps []model.Exploration) error {
	switch f {
	case FormatCSV:
		return writeExplorationsCSV(w, exps)
	case FormatXLSX:
		return writeExplorationsXLSX(w, exps)
	default:
		return eris.Errorf("tabular: unsupported format %q", f)
	}
}

func writeExplorationsCSV(w io.Writer, exps []model.Exploration) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(explorationHeader); err != nil {
		return eris.Wrap(err, "tabular: write CSV header")
	}
	for i := range exps {
		e := &exps[i]
		row := []string{
			e.ID,
			e.Question,
			e.SourceModel,
			strings.Join(e.Claims, "\n"),
			strconv.FormatFloat(e.Confidence, 'f', -1, 64),
			e.Uncertainty,
			strings.Join(e.FollowUps, "\n"),
			strconv.Itoa(e.TokensUsed),
			strconv.FormatFloat(e.CostDollars, 'f', -1, 64),
			strconv.FormatFloat(e.PredictedValue, 'f', -1, 64),
			string(e.CurationStatus),
			e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "tabular: write CSV row %s", e.ID)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "tabular: flush CSV")
}

func writeExplorationsXLSX(w io.Writer, exps []model.Exploration) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(ExplorationSheet)
	if err != nil {
		return eris.Wrap(err, "tabular: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range explorationHeader {
		header.AddCell().SetString(h)
	}

	for i := range exps {
		e := &exps[i]
		row := sheet.AddRow()
		row.AddCell().SetString(e.ID)
		row.AddCell().SetString(e.Question)
		row.AddCell().SetString(e.SourceModel)
		row.AddCell().SetString(strings.Join(e.Claims, "\n"))
		row.AddCell().SetFloat(e.Confidence)
		row.AddCell().SetString(e.Uncertainty)
		row.AddCell().SetString(strings.Join(e.FollowUps, "\n"))
		row.AddCell().SetInt(e.TokensUsed)
		row.AddCell().SetFloat(e.CostDollars)
		row.AddCell().SetFloat(e.PredictedValue)
		row.AddCell().SetString(string(e.CurationStatus))
		row.AddCell().SetString(e.CreatedAt.UTC().Format(time.RFC3339))
	}

	return eris.Wrap(f.Write(w), "tabular: write XLSX")
}
