package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aristath/riskdecomp/internal/domain"
	"github.com/aristath/riskdecomp/internal/modules/analysis"
	"github.com/aristath/riskdecomp/internal/modules/factors"
	"github.com/aristath/riskdecomp/internal/modules/tracking"
)

// AnalysisFile is the YAML definition of an analysis run
type AnalysisFile struct {
	Analysis AnalysisSection  `yaml:"analysis"`
	Tracking *TrackingSection `yaml:"tracking"`
	Output   OutputSection    `yaml:"output"`
}

// AnalysisSection selects the asset, benchmark, window and factors
type AnalysisSection struct {
	AsOf      string         `yaml:"as_of"`
	StartDate string         `yaml:"start_date"`
	EndDate   string         `yaml:"end_date"`
	Asset     string         `yaml:"asset"`
	Benchmark string         `yaml:"benchmark"`
	Factors   []FactorConfig `yaml:"factors"`
}

// FactorConfig is one factor definition
type FactorConfig struct {
	Name   string `yaml:"name"`
	Field  string `yaml:"field"`
	Invert bool   `yaml:"invert"`
}

// TrackingSection requests a tracking portfolio
type TrackingSection struct {
	Targets      []float64         `yaml:"targets"`
	Candidates   []CandidateConfig `yaml:"candidates"`
	CandidateIDs []string          `yaml:"candidate_ids"`
}

// CandidateConfig is a tracking candidate with known sensitivities
type CandidateConfig struct {
	ID            string    `yaml:"id"`
	Sensitivities []float64 `yaml:"sensitivities"`
}

// OutputSection controls how the report is written
type OutputSection struct {
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
}

// LoadAnalysis reads an analysis definition from a YAML file
func LoadAnalysis(path string) (*AnalysisFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis file: %w", err)
	}
	return ParseAnalysis(data)
}

// ParseAnalysis decodes an analysis definition. Unknown keys are rejected.
func ParseAnalysis(data []byte) (*AnalysisFile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file AnalysisFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse analysis file: %w", err)
	}
	return &file, nil
}

// ToRequest converts the file into an analysis request. Empty dates are left
// zero for Request.Normalize to default or reject.
func (f *AnalysisFile) ToRequest() (analysis.Request, error) {
	asOf, err := parseOptionalDate("as_of", f.Analysis.AsOf)
	if err != nil {
		return analysis.Request{}, err
	}
	start, err := parseOptionalDate("start_date", f.Analysis.StartDate)
	if err != nil {
		return analysis.Request{}, err
	}
	end, err := parseOptionalDate("end_date", f.Analysis.EndDate)
	if err != nil {
		return analysis.Request{}, err
	}

	req := analysis.Request{
		AsOf:        asOf,
		Start:       start,
		End:         end,
		AssetID:     strings.TrimSpace(f.Analysis.Asset),
		BenchmarkID: strings.TrimSpace(f.Analysis.Benchmark),
	}

	for i, fc := range f.Analysis.Factors {
		field, err := domain.ParseFundamentalField(fc.Field)
		if err != nil {
			return analysis.Request{}, fmt.Errorf("factors[%d]: %w", i, err)
		}
		name := fc.Name
		if name == "" {
			name = string(field)
		}
		req.Factors = append(req.Factors, factors.Spec{Name: name, Field: field, Invert: fc.Invert})
	}

	if f.Tracking != nil {
		t := &analysis.TrackingRequest{
			Target:       f.Tracking.Targets,
			CandidateIDs: f.Tracking.CandidateIDs,
		}
		for _, c := range f.Tracking.Candidates {
			if c.ID == "" {
				return analysis.Request{}, fmt.Errorf("tracking candidate without id")
			}
			t.Candidates = append(t.Candidates, tracking.Candidate{ID: c.ID, Sensitivities: c.Sensitivities})
		}
		req.Tracking = t
	}

	return req, nil
}

func parseOptionalDate(key, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(domain.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return t, nil
}
