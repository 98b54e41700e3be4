package model

import (
	"fmt"
	"math"
)

// DimensionError reports a record whose vector length differs from the
// collection's declared dimensionality.
type DimensionError struct {
	ID       string
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("record %q: dimension mismatch: expected %d, got %d", e.ID, e.Expected, e.Actual)
}

// NonFiniteError reports a NaN or infinite vector component.
type NonFiniteError struct {
	ID    string
	Index int
}

func (e *NonFiniteError) Error() string {
	return fmt.Sprintf("record %q: non-finite component at index %d", e.ID, e.Index)
}

// ValidateRecord checks a single record against the declared dimensionality
// and rejects NaN and infinite components.
func ValidateRecord(r *Record, dimensions int) error {
	if len(r.Vector) != dimensions {
		return &DimensionError{ID: r.ID, Expected: dimensions, Actual: len(r.Vector)}
	}

	for i, v := range r.Vector {
		// v != v catches NaN without a float64 round-trip.
		if v != v || math.IsInf(float64(v), 0) {
			return &NonFiniteError{ID: r.ID, Index: i}
		}
	}

	return nil
}

// ValidateRecords checks every record of a decoded chunk, failing on the
// first invalid one.
func ValidateRecords(records []Record, dimensions int) error {
	for i := range records {
		if err := ValidateRecord(&records[i], dimensions); err != nil {
			return err
		}
	}

	return nil
}
