package risk

import "github.com/rotisserie/eris"

// Sentinel errors surfaced to callers. Check with eris.Is.
var (
	// ErrNotFound indicates the parcel collection is empty, so no nearest
	// parcel exists.
	ErrNotFound = eris.New("risk: no parcels loaded")

	// ErrInvalidInput indicates a malformed query: an out-of-range or
	// non-finite coordinate, an unresolvable address, or a NaN threshold.
	ErrInvalidInput = eris.New("risk: invalid input")
)
