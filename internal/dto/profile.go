package dto

import "github.com/noah-isme/shopping-request-api/internal/models"

// CreateProfileRequest is the payload for provisioning a profile.
type CreateProfileRequest struct {
	Email       string      `json:"email" validate:"required,email"`
	Password    string      `json:"password" validate:"required,min=8"`
	DisplayName string      `json:"display_name" validate:"required,max=120"`
	Role        models.Role `json:"role" validate:"required,oneof=user manager procurement admin"`
	ManagerID   *string     `json:"manager_id" validate:"omitempty,uuid"`
	CostCenter  *string     `json:"cost_center" validate:"omitempty,max=40"`
}

// UpdateProfileRequest changes mutable profile attributes. Nil fields are left untouched;
// ClearManager detaches the current manager.
type UpdateProfileRequest struct {
	DisplayName  *string      `json:"display_name" validate:"omitempty,max=120"`
	Role         *models.Role `json:"role" validate:"omitempty,oneof=user manager procurement admin"`
	ManagerID    *string      `json:"manager_id" validate:"omitempty,uuid"`
	ClearManager bool         `json:"clear_manager"`
	CostCenter   *string      `json:"cost_center" validate:"omitempty,max=40"`
	Active       *bool        `json:"active"`
}
