package match

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Input errors are surfaced to the caller before any processing happens.
var (
	ErrEmptyAddress                  = eris.New("match: input address is required")
	ErrThresholdBelowFloor           = eris.New("match: threshold below floor")
	ErrThresholdAboveMax             = eris.New("match: threshold above maximum")
	ErrConfidenceThresholdOutOfRange = eris.New("match: confidence threshold out of range")
)

// ValidateThreshold checks a similarity threshold against the floor and max.
func ValidateThreshold(threshold float64) error {
	if !(threshold >= ThresholdFloor) {
		return eris.Wrapf(ErrThresholdBelowFloor, "threshold %.2f must be at least %.0f", threshold, ThresholdFloor)
	}
	if threshold > MaxThreshold {
		return eris.Wrapf(ErrThresholdAboveMax, "threshold %.2f must be at most %.0f", threshold, MaxThreshold)
	}
	return nil
}

// ValidateConfidenceThreshold checks that a confidence threshold is in [0,100].
func ValidateConfidenceThreshold(threshold float64) error {
	if !(threshold >= 0 && threshold <= 100) {
		return eris.Wrapf(ErrConfidenceThresholdOutOfRange, "confidence threshold %.2f must be within 0-100", threshold)
	}
	return nil
}

// IsInputError reports whether err was caused by bad caller input.
func IsInputError(err error) bool {
	return errors.Is(err, ErrEmptyAddress) ||
		errors.Is(err, ErrThresholdBelowFloor) ||
		errors.Is(err, ErrThresholdAboveMax) ||
		errors.Is(err, ErrConfidenceThresholdOutOfRange)
}
