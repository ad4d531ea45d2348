package risk

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
)

// FilterByScore returns the parcels whose risk score is at least
// threshold, sorted by score descending with ties broken by ID ascending.
// A NaN threshold returns ErrInvalidInput; -Inf selects every parcel and
// +Inf selects none.
func FilterByScore(parcels []parcel.Parcel, threshold float64) ([]parcel.Parcel, error) {
	if math.IsNaN(threshold) {
		return nil, eris.Wrap(ErrInvalidInput, "threshold is NaN")
	}

	out := make([]parcel.Parcel, 0, len(parcels))
	for _, p := range parcels {
		if p.Score >= threshold {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
