// Package report renders analysis results as tables or structured documents.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/aristath/riskdecomp/internal/domain"
	"github.com/aristath/riskdecomp/internal/modules/analysis"
)

// Format is an output encoding
type Format string

// Supported formats
const (
	FormatTable   Format = "table"
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatMsgpack Format = "msgpack"
)

// ParseFormat validates a format name. Empty selects FormatTable.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML, FormatMsgpack:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json, yaml or msgpack)", name)
}

// Write renders a full analysis report
func Write(w io.Writer, format Format, r *analysis.Report) error {
	if format == FormatTable {
		return writeReportTables(w, r)
	}
	return encode(w, format, r)
}

// WriteTracking renders a tracking result on its own
func WriteTracking(w io.Writer, format Format, t *analysis.TrackingResult) error {
	if t == nil {
		return fmt.Errorf("no tracking result to write")
	}
	if format == FormatTable {
		_, err := io.WriteString(w, trackingTable(t).Render()+"\n")
		return err
	}
	return encode(w, format, t)
}

func encode(w io.Writer, format Format, v interface{}) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatMsgpack:
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode msgpack: %w", err)
		}
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
	return nil
}

func writeReportTables(w io.Writer, r *analysis.Report) error {
	tables := []table.Writer{summaryTable(r), factorTable(r), attributionTable(r)}
	if r.Tracking != nil {
		tables = append(tables, trackingTable(r.Tracking))
	}
	if len(r.Excluded) > 0 || hasFactorExclusions(r) {
		tables = append(tables, exclusionTable(r))
	}

	for _, t := range tables {
		if _, err := io.WriteString(w, t.Render()+"\n\n"); err != nil {
			return err
		}
	}
	return nil
}

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

func summaryTable(r *analysis.Report) table.Writer {
	t := newTable("Analysis " + r.RunID)
	t.AppendRows([]table.Row{
		{"Asset", r.Request.AssetID},
		{"Benchmark", r.Request.BenchmarkID},
		{"Fundamentals as of", r.Request.AsOf.Format(domain.DateLayout)},
		{"Window", r.WindowStart.Format(domain.DateLayout) + " to " + r.WindowEnd.Format(domain.DateLayout)},
		{"Observations", r.Observations},
		{"Universe", r.Universe},
	})
	if r.Regression != nil {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"Intercept", fmt.Sprintf("%.6f", r.Regression.Intercept)},
			{"R squared", fmt.Sprintf("%.4f", r.Regression.RSquared)},
		})
	}
	return t
}

func factorTable(r *analysis.Report) table.Writer {
	t := newTable("Factors")
	t.AppendHeader(table.Row{"Factor", "Field", "Top", "Middle", "Bottom", "Excluded", "Mean", "Volatility"})
	for _, f := range r.Factors {
		name := f.Name
		if f.Invert {
			name += " (inverted)"
		}
		t.AppendRow(table.Row{
			name, f.Field, len(f.Top), f.Middle, len(f.Bottom), len(f.Excluded),
			fmt.Sprintf("%.6f", f.Mean), fmt.Sprintf("%.6f", f.Volatility),
		})
	}
	return t
}

func attributionTable(r *analysis.Report) table.Writer {
	t := newTable("Active risk attribution")
	t.AppendHeader(table.Row{"Factor", "Sensitivity", "FMCAR"})
	for _, c := range r.Contributions {
		t.AppendRow(table.Row{c.Factor, fmt.Sprintf("%.4f", c.Sensitivity), percent(c.FMCAR)})
	}
	if r.Attribution != nil {
		t.AppendFooter(table.Row{"Factors total", "", percent(r.Attribution.FactorShare)})
		t.AppendFooter(table.Row{"Idiosyncratic", "", percent(r.Attribution.Idiosyncratic)})
	}
	return t
}

func trackingTable(tr *analysis.TrackingResult) table.Writer {
	t := newTable("Tracking portfolio")
	t.AppendHeader(table.Row{"Asset", "Sensitivities", "Weight"})
	for i, w := range tr.Portfolio.Weights {
		var sens []float64
		if i < len(tr.Candidates) {
			sens = tr.Candidates[i].Sensitivities
		}
		t.AppendRow(table.Row{w.ID, floatList(sens), fmt.Sprintf("%.6f", w.Weight)})
	}
	t.AppendFooter(table.Row{"Target", floatList(tr.Portfolio.Target), fmt.Sprintf("%.6f", tr.Portfolio.Budget)})
	t.AppendFooter(table.Row{"Achieved", floatList(tr.Portfolio.Exposures), ""})
	return t
}

func exclusionTable(r *analysis.Report) table.Writer {
	t := newTable("Excluded assets")
	t.AppendHeader(table.Row{"Stage", "Asset", "Reason"})
	for _, ex := range r.Excluded {
		t.AppendRow(table.Row{"universe", ex.AssetID, ex.Reason})
	}
	for _, f := range r.Factors {
		for _, ex := range f.Excluded {
			t.AppendRow(table.Row{f.Name, ex.AssetID, ex.Reason})
		}
	}
	return t
}

func hasFactorExclusions(r *analysis.Report) bool {
	for _, f := range r.Factors {
		if len(f.Excluded) > 0 {
			return true
		}
	}
	return false
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", 100*v)
}

func floatList(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.4f", x)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
