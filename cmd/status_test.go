package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
)

func TestCountScored(t *testing.T) {
	parcels := []parcel.Parcel{
		{ID: "P001", Score: 42, WetlandDistance: 120.5},
		// Scored with a legitimate zero result, still counts.
		{ID: "P002", Score: 0, WetlandDistance: 900},
		// Never scored; the stored wetland distance is NULL.
		{ID: "P003", WetlandDistance: math.Inf(1)},
	}

	assert.Equal(t, 2, countScored(parcels))
	assert.Equal(t, 0, countScored(nil))
}
