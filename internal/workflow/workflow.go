// Package workflow holds the shopping request lifecycle: which status an action
// leads to and which actors may attempt it.
package workflow

import (
	"errors"
	"fmt"

	"github.com/noah-isme/shopping-request-api/internal/models"
)

// Action is a caller intent applied to a request.
type Action string

const (
	ActionSubmit   Action = "submit"
	ActionEdit     Action = "edit"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
	ActionDelete   Action = "delete"
)

var (
	ErrInvalidTransition = errors.New("workflow: transition not allowed")
	ErrNotAuthorized     = errors.New("workflow: actor not authorized")
	ErrUnknownStatus     = errors.New("workflow: unknown status")
	ErrUnknownAction     = errors.New("workflow: unknown action")
	ErrNotReady          = errors.New("workflow: request not ready for submission")
)

// Next returns the status a request moves to when action is applied in from.
// Delete keeps the status since the row is removed rather than updated.
func Next(from models.RequestStatus, action Action) (models.RequestStatus, error) {
	if !from.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}

	switch action {
	case ActionSubmit:
		if Editable(from) {
			return models.StatusPendingApproval, nil
		}
	case ActionEdit:
		if Editable(from) {
			return models.StatusDraft, nil
		}
	case ActionApprove:
		if from == models.StatusPendingApproval {
			return models.StatusApproved, nil
		}
	case ActionReject:
		if from == models.StatusPendingApproval {
			return models.StatusRejected, nil
		}
	case ActionComplete:
		if from == models.StatusApproved {
			return models.StatusCompleted, nil
		}
	case ActionCancel:
		if from == models.StatusPendingApproval || from == models.StatusApproved {
			return models.StatusCancelled, nil
		}
	case ActionDelete:
		if from == models.StatusDraft {
			return from, nil
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	return "", fmt.Errorf("%w: cannot %s a %s request", ErrInvalidTransition, action, from)
}

// Sources lists the statuses from which action is legal.
func Sources(action Action) []models.RequestStatus {
	sources := make([]models.RequestStatus, 0, 2)
	for _, status := range models.RequestStatuses {
		if _, err := Next(status, action); err == nil {
			sources = append(sources, status)
		}
	}
	return sources
}

// Terminal reports whether no action can leave status.
func Terminal(status models.RequestStatus) bool {
	return status == models.StatusCompleted || status == models.StatusRejected
}

// Editable reports whether the requester may still change content in status.
func Editable(status models.RequestStatus) bool {
	return status == models.StatusDraft || status == models.StatusCancelled
}

// Actions enumerates every action in a stable order.
func Actions() []Action {
	return []Action{ActionSubmit, ActionEdit, ActionApprove, ActionReject, ActionComplete, ActionCancel, ActionDelete}
}
