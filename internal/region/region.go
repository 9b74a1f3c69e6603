// Package region enumerates the spatial units of a global vector dataset
// and extracts individual region geometries into standalone single-feature
// vectors for downstream clipping.
package region

import (
	"context"
	"fmt"
	"slices"

	"landopt/internal/gis"
)

// Region is one spatial unit processed independently end to end. Label is
// the filter field's value and doubles as a filesystem-safe directory name.
type Region struct {
	FID   int64
	Label string
	Area  float64
}

// Enumerate reads every feature of the vector once and returns the regions
// sorted by ascending geometry area, so the least costly regions are
// scheduled first.
func Enumerate(ctx context.Context, store gis.VectorStore, vectorPath, field string) ([]Region, error) {
	dataset, err := store.OpenVector(ctx, vectorPath)
	if err != nil {
		return nil, fmt.Errorf("enumerate regions: open %s: %w", vectorPath, err)
	}
	defer dataset.Close()

	features, err := dataset.Features(ctx, field)
	if err != nil {
		return nil, fmt.Errorf("enumerate regions: read features of %s: %w", vectorPath, err)
	}

	regions := make([]Region, 0, len(features))
	for _, feature := range features {
		regions = append(regions, Region{FID: feature.FID, Label: feature.Value, Area: feature.Area})
	}
	slices.SortStableFunc(regions, func(a, b Region) int {
		switch {
		case a.Area < b.Area:
			return -1
		case a.Area > b.Area:
			return 1
		default:
			return 0
		}
	})
	return regions, nil
}

// FilterSkipped drops regions whose label appears in the skip list. A
// skip-listed label absent from the data is a no-op, not an error.
func FilterSkipped(regions []Region, skip []string) []Region {
	if len(skip) == 0 {
		return regions
	}
	kept := make([]Region, 0, len(regions))
	for _, r := range regions {
		if slices.Contains(skip, r.Label) {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}
