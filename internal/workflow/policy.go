package workflow

import (
	"fmt"

	"github.com/noah-isme/shopping-request-api/internal/models"
)

// Actor is the authenticated identity attempting an action.
type Actor struct {
	ID   string
	Role models.Role
}

// Subject is the slice of request state the policy needs.
type Subject struct {
	RequesterID string
	ApproverID  string
	Status      models.RequestStatus
	ItemCount   int
}

// SubjectOf extracts the policy view of a stored request.
func SubjectOf(req *models.ShoppingRequest) Subject {
	subject := Subject{
		RequesterID: req.RequesterID,
		Status:      req.Status,
		ItemCount:   len(req.Items),
	}
	if req.ApproverID != nil {
		subject.ApproverID = *req.ApproverID
	}
	return subject
}

// Policy decides who may act on a request.
type Policy struct {
	// AssignedApproverOnly restricts managers to requests assigned to them.
	// Procurement may act on any request either way.
	AssignedApproverOnly bool
}

// Authorize checks the identity side of an attempt without looking at the status.
func (p Policy) Authorize(actor Actor, subject Subject, action Action) error {
	if actor.ID == "" {
		return fmt.Errorf("%w: anonymous actor", ErrNotAuthorized)
	}

	switch action {
	case ActionSubmit, ActionEdit, ActionDelete:
		if actor.ID != subject.RequesterID {
			return fmt.Errorf("%w: only the requester may %s", ErrNotAuthorized, action)
		}
	case ActionApprove, ActionReject, ActionCancel:
		switch actor.Role {
		case models.RoleProcurement:
		case models.RoleManager:
			if p.AssignedApproverOnly && subject.ApproverID != actor.ID {
				return fmt.Errorf("%w: manager is not the assigned approver", ErrNotAuthorized)
			}
		default:
			return fmt.Errorf("%w: role %s may not %s", ErrNotAuthorized, actor.Role, action)
		}
	case ActionComplete:
		if actor.Role != models.RoleProcurement {
			return fmt.Errorf("%w: role %s may not %s", ErrNotAuthorized, actor.Role, action)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return nil
}

// Check authorizes the attempt and resolves the resulting status.
func (p Policy) Check(actor Actor, subject Subject, action Action) (models.RequestStatus, error) {
	if err := p.Authorize(actor, subject, action); err != nil {
		return "", err
	}
	next, err := Next(subject.Status, action)
	if err != nil {
		return "", err
	}
	if action == ActionSubmit {
		if subject.ItemCount == 0 {
			return "", fmt.Errorf("%w: at least one line item is required", ErrNotReady)
		}
		if subject.ApproverID == "" {
			return "", fmt.Errorf("%w: an approver must be assigned", ErrNotReady)
		}
	}
	return next, nil
}
