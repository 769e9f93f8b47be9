package milestones

import "errors"

var (
	// ErrEmptyPlan is returned when scheduling without milestones.
	ErrEmptyPlan = errors.New("milestones: empty plan")
	// ErrEmptyName is returned when a plan step has no name.
	ErrEmptyName = errors.New("milestones: empty name")
	// ErrInvalidPercentage is returned for percentages outside (0, 100].
	ErrInvalidPercentage = errors.New("milestones: percentage must be in (0, 100]")
	// ErrAlreadyScheduled is returned when an account already has milestones.
	ErrAlreadyScheduled = errors.New("milestones: account already scheduled")
	// ErrVersionConflict is returned when a milestone changed since it was loaded.
	ErrVersionConflict = errors.New("milestones: version conflict")
)
