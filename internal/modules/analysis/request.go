package analysis

import (
	"errors"
	"fmt"
	"time"

	"github.com/aristath/riskdecomp/internal/domain"
	"github.com/aristath/riskdecomp/internal/modules/factors"
	"github.com/aristath/riskdecomp/internal/modules/tracking"
)

// ErrInvalidRequest is returned for requests that cannot be run
var ErrInvalidRequest = errors.New("invalid analysis request")

// Request describes one analysis run
type Request struct {
	// AsOf selects the fundamentals snapshot used for ranking. Defaults to Start.
	AsOf        time.Time        `json:"as_of" yaml:"as_of" msgpack:"as_of"`
	Start       time.Time        `json:"start" yaml:"start" msgpack:"start"`
	End         time.Time        `json:"end" yaml:"end" msgpack:"end"`
	AssetID     string           `json:"asset" yaml:"asset" msgpack:"asset"`
	BenchmarkID string           `json:"benchmark" yaml:"benchmark" msgpack:"benchmark"`
	Factors     []factors.Spec   `json:"factors" yaml:"factors" msgpack:"factors"`
	Tracking    *TrackingRequest `json:"tracking,omitempty" yaml:"tracking,omitempty" msgpack:"tracking,omitempty"`
}

// TrackingRequest asks for a tracking portfolio alongside the attribution.
// Exactly one of Candidates and CandidateIDs is set.
type TrackingRequest struct {
	// Target overrides the asset's estimated sensitivities
	Target []float64 `json:"target,omitempty" yaml:"target,omitempty" msgpack:"target,omitempty"`
	// Candidates carry known sensitivities in factor order
	Candidates []tracking.Candidate `json:"candidates,omitempty" yaml:"candidates,omitempty" msgpack:"candidates,omitempty"`
	// CandidateIDs have their sensitivities estimated from prices
	CandidateIDs []string `json:"candidate_ids,omitempty" yaml:"candidate_ids,omitempty" msgpack:"candidate_ids,omitempty"`
}

// DefaultFactors are used when a request names none
func DefaultFactors() []factors.Spec {
	return []factors.Spec{factors.Size, factors.Value}
}

// Normalize fills defaults and validates the request
func (r *Request) Normalize() error {
	if r.AssetID == "" {
		return fmt.Errorf("%w: asset is required", ErrInvalidRequest)
	}
	if r.BenchmarkID == "" {
		return fmt.Errorf("%w: benchmark is required", ErrInvalidRequest)
	}
	if r.AssetID == r.BenchmarkID {
		return fmt.Errorf("%w: asset and benchmark are both %s", ErrInvalidRequest, r.AssetID)
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidRequest)
	}
	if !r.Start.Before(r.End) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidRequest,
			r.Start.Format(domain.DateLayout), r.End.Format(domain.DateLayout))
	}
	if r.AsOf.IsZero() {
		r.AsOf = r.Start
	}

	if len(r.Factors) == 0 {
		r.Factors = DefaultFactors()
	}
	seen := make(map[string]bool, len(r.Factors))
	for i, spec := range r.Factors {
		if spec.Name == "" {
			return fmt.Errorf("%w: factor %d has no name", ErrInvalidRequest, i)
		}
		if seen[spec.Name] {
			return fmt.Errorf("%w: duplicate factor %s", ErrInvalidRequest, spec.Name)
		}
		seen[spec.Name] = true
		if _, err := domain.ParseFundamentalField(string(spec.Field)); err != nil {
			return fmt.Errorf("%w: factor %s: %v", ErrInvalidRequest, spec.Name, err)
		}
	}

	if r.Tracking != nil {
		return r.Tracking.validate(len(r.Factors))
	}
	return nil
}

func (t *TrackingRequest) validate(k int) error {
	hasExplicit, hasIDs := len(t.Candidates) > 0, len(t.CandidateIDs) > 0
	switch {
	case hasExplicit && hasIDs:
		return fmt.Errorf("%w: tracking candidates and candidate_ids are mutually exclusive", ErrInvalidRequest)
	case !hasExplicit && !hasIDs:
		return fmt.Errorf("%w: tracking needs candidates or candidate_ids", ErrInvalidRequest)
	}
	if len(t.Target) > 0 && len(t.Target) != k {
		return fmt.Errorf("%w: tracking target has %d sensitivities for %d factors", ErrInvalidRequest, len(t.Target), k)
	}
	return nil
}

// fields lists the distinct fundamentals the factors rank on, in order
func (r *Request) fields() []domain.FundamentalField {
	var out []domain.FundamentalField
	seen := make(map[domain.FundamentalField]bool)
	for _, spec := range r.Factors {
		if !seen[spec.Field] {
			seen[spec.Field] = true
			out = append(out, spec.Field)
		}
	}
	return out
}
