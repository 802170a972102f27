// Package export serializes rule sets for external consumption and
// imports them back. JSON is the lossless round-trip format; CSV, XLSX
// and PDF are reporting formats.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"github.com/cognicore/rulemine/pkg/rulemine/internalerr"
	"github.com/cognicore/rulemine/pkg/rulemine/rules"
)

// Supported formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

var header = []string{
	"id", "condition", "consequent", "support", "confidence", "lift",
	"lift_undefined", "rule_type", "is_active", "validation_score", "created_at",
}

// Marshal renders a rule set in the requested format.
func Marshal(rs rules.RuleSet, format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		return marshalJSON(rs)
	case FormatCSV:
		return marshalCSV(rs)
	case FormatXLSX:
		return marshalXLSX(rs)
	case FormatPDF:
		return marshalPDF(rs)
	default:
		return nil, fmt.Errorf("format %q: %w", format, internalerr.ErrUnsupportedFormat)
	}
}

func marshalJSON(rs rules.RuleSet) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalCSV(rs rules.RuleSet) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, r := range rs.Rules {
		if err := w.Write(ruleRow(r)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func ruleRow(r rules.BusinessRule) []string {
	score := ""
	if r.ValidationScore != nil {
		score = strconv.FormatFloat(*r.ValidationScore, 'f', -1, 64)
	}
	return []string{
		r.ID,
		r.Condition,
		r.Consequent,
		strconv.Itoa(r.Support),
		strconv.FormatFloat(r.Confidence, 'f', -1, 64),
		strconv.FormatFloat(r.Lift, 'f', -1, 64),
		strconv.FormatBool(r.LiftUndefined),
		r.RuleType,
		strconv.FormatBool(r.IsActive),
		score,
		r.CreatedAt.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
	}
}

func marshalXLSX(rs rules.RuleSet) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Rules"
	f.SetSheetName("Sheet1", sheet)
	for col, h := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}
	for i, r := range rs.Rules {
		for col, v := range ruleRow(r) {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalPDF(rs rules.RuleSet) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Business Rules: "+rs.ProjectID, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, fmt.Sprintf("Business Rules for project %s (%d records)", rs.ProjectID, rs.TotalRecords), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 9)
	widths := []float64{90, 60, 20, 25, 20, 30, 25}
	cols := []string{"Condition", "Consequent", "Support", "Confidence", "Lift", "Type", "Active"}
	for i, c := range cols {
		pdf.CellFormat(widths[i], 7, c, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, r := range rs.Rules {
		lift := strconv.FormatFloat(r.Lift, 'f', 2, 64)
		if r.LiftUndefined {
			lift = "n/a"
		}
		row := []string{
			r.Condition,
			r.Consequent,
			strconv.Itoa(r.Support),
			strconv.FormatFloat(r.Confidence, 'f', 3, 64),
			lift,
			r.RuleType,
			strconv.FormatBool(r.IsActive),
		}
		for i, v := range row {
			pdf.CellFormat(widths[i], 6, v, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON parses a rule set previously produced by Marshal with
// FormatJSON. Rules missing a condition or consequent are rejected.
func UnmarshalJSON(data []byte) (rules.RuleSet, error) {
	var rs rules.RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return rules.RuleSet{}, fmt.Errorf("parse rule set: %w", err)
	}
	for i, r := range rs.Rules {
		if r.Condition == "" || r.Consequent == "" {
			return rules.RuleSet{}, fmt.Errorf("rule %d: missing condition or consequent", i)
		}
	}
	return rs, nil
}
