package factors

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/riskdecomp/internal/domain"
)

// CompleteCases keeps rows that carry a finite value for every field.
// Everything else is reported instead of silently dropped.
func CompleteCases(universe domain.Fundamentals, fields []domain.FundamentalField) (domain.Fundamentals, []domain.Exclusion) {
	kept := make(domain.Fundamentals, 0, len(universe))
	var excluded []domain.Exclusion

	for _, r := range universe {
		missing := ""
		for _, f := range fields {
			v := r.Value(f)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				missing = string(f)
				break
			}
		}
		if missing != "" {
			excluded = append(excluded, domain.Exclusion{AssetID: r.ID, Reason: "missing " + missing})
			continue
		}
		kept = append(kept, r)
	}

	return kept, excluded
}

// ValidateUniverse filters the records that can be ranked by field.
// Rows need an ID, no duplicate IDs and a finite, strictly positive value
// (market cap is positive by definition, book-to-price is filtered to > 0).
func ValidateUniverse(universe domain.Fundamentals, field domain.FundamentalField) (domain.Fundamentals, []domain.Exclusion) {
	valid := make(domain.Fundamentals, 0, len(universe))
	var excluded []domain.Exclusion
	seen := make(map[string]bool, len(universe))

	for _, r := range universe {
		v := r.Value(field)
		switch {
		case r.ID == "":
			excluded = append(excluded, domain.Exclusion{Reason: "empty asset id"})
		case seen[r.ID]:
			excluded = append(excluded, domain.Exclusion{AssetID: r.ID, Reason: "duplicate asset id"})
		case math.IsNaN(v) || math.IsInf(v, 0):
			excluded = append(excluded, domain.Exclusion{AssetID: r.ID, Reason: fmt.Sprintf("missing %s", field)})
		case v <= 0:
			excluded = append(excluded, domain.Exclusion{AssetID: r.ID, Reason: fmt.Sprintf("non-positive %s %v", field, v)})
		default:
			seen[r.ID] = true
			valid = append(valid, r)
		}
	}

	return valid, excluded
}

// RankAscending sorts a copy of the universe by field, lowest first.
// Ties are broken by asset ID so repeated runs produce the same buckets.
func RankAscending(universe domain.Fundamentals, field domain.FundamentalField) domain.Fundamentals {
	ranked := make(domain.Fundamentals, len(universe))
	copy(ranked, universe)
	sort.SliceStable(ranked, func(i, j int) bool {
		vi, vj := ranked[i].Value(field), ranked[j].Value(field)
		if vi != vj {
			return vi < vj
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

// BucketSize is the number of assets in each tail bucket: floor(pct*n/100).
// Integer arithmetic keeps the boundary exact; with pct=30 the top bucket
// starts at ceil(0.7n) and both tails have the same size.
func BucketSize(n, pct int) int {
	return pct * n / 100
}

// Buckets splits an ascending ranking into bottom, middle and top buckets
func Buckets(ranked domain.Fundamentals, pct int) (bottom, middle, top domain.Fundamentals, err error) {
	if pct <= 0 || pct >= 50 {
		return nil, nil, nil, fmt.Errorf("bucket percent must be in (0, 50), got %d", pct)
	}

	n := len(ranked)
	k := BucketSize(n, pct)
	if k == 0 {
		return nil, nil, nil, fmt.Errorf("%w: universe of %d assets leaves the %d%% buckets empty",
			domain.ErrDegenerateInput, n, pct)
	}

	bottom = ranked[:k]
	middle = ranked[k : n-k]
	top = ranked[n-k:]
	return bottom, middle, top, nil
}
