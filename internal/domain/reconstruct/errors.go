package reconstruct

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrPartNotFound        = errors.New("part not found in catalog")
	ErrNoPreviousStage     = errors.New("part has no previous stage")
	ErrActivitiesUnordered = errors.New("activities are not ordered newest first")
	ErrIncompleteParts     = errors.New("asset is missing body parts")
)

// PartNotFoundError reports a part id that stayed missing after a catalog refresh.
type PartNotFoundError struct {
	PartID string
}

func (e *PartNotFoundError) Error() string {
	return fmt.Sprintf("part %q not found in catalog after refresh", e.PartID)
}

// Is matches ErrPartNotFound.
func (e *PartNotFoundError) Is(target error) bool {
	return target == ErrPartNotFound
}
