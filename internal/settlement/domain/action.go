package settlement

import (
	"fmt"
	"strings"

	milestones "marketplace-settlement/internal/milestones/domain"
)

// Action is a milestone command issued by a party.
type Action string

const (
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionVerify   Action = "verify"
	ActionDispute  Action = "dispute"
)

// ParseAction normalizes an action name.
func ParseAction(value string) (Action, error) {
	action := Action(strings.ToLower(strings.TrimSpace(value)))
	switch action {
	case ActionStart, ActionComplete, ActionVerify, ActionDispute:
		return action, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, value)
	}
}

// Target returns the milestone status the action moves to.
func (a Action) Target() milestones.Status {
	switch a {
	case ActionStart:
		return milestones.StatusInProgress
	case ActionComplete:
		return milestones.StatusCompleted
	case ActionVerify:
		return milestones.StatusVerified
	case ActionDispute:
		return milestones.StatusDisputed
	default:
		return ""
	}
}
