package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/shopping-request-api/internal/dto"
	"github.com/noah-isme/shopping-request-api/internal/models"
	appErrors "github.com/noah-isme/shopping-request-api/pkg/errors"
)

// maxManagerDepth bounds the walk up a manager chain.
const maxManagerDepth = 64

type profileRepository interface {
	List(ctx context.Context, filter models.ProfileFilter) ([]models.Profile, int, error)
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	FindByEmail(ctx context.Context, email string) (*models.Profile, error)
	Create(ctx context.Context, profile *models.Profile) error
	Update(ctx context.Context, profile *models.Profile) error
	Delete(ctx context.Context, id string) error
}

// ProfileService manages profiles and their manager hierarchy.
type ProfileService struct {
	repo      profileRepository
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProfileService creates an instance of ProfileService.
func NewProfileService(repo profileRepository, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ProfileService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// List returns paginated profiles and pagination metadata.
func (s *ProfileService) List(ctx context.Context, filter models.ProfileFilter) ([]models.Profile, *models.Pagination, error) {
	profiles, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list profiles")
	}
	return profiles, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a single profile.
func (s *ProfileService) Get(ctx context.Context, id string) (*models.Profile, error) {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return profile, nil
}

// Create provisions a profile after checking the manager reference.
func (s *ProfileService) Create(ctx context.Context, req dto.CreateProfileRequest, actorID string) (*models.Profile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	managerID := trimmedOrNil(req.ManagerID)
	if managerID != nil {
		if err := s.ensureManager(ctx, *managerID); err != nil {
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	profile := &models.Profile{
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Role:         req.Role,
		ManagerID:    managerID,
		CostCenter:   trimmedOrNil(req.CostCenter),
		Active:       true,
	}
	if err := s.repo.Create(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create profile")
	}

	s.record(ctx, actorID, models.AuditActionProfileCreate, profile.ID, nil, profile)
	return profile, nil
}

// Update changes profile attributes. A new manager must exist and must not sit
// below the profile in its own chain.
func (s *ProfileService) Update(ctx context.Context, id string, req dto.UpdateProfileRequest, actorID string) (*models.Profile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	profile, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *profile

	if req.DisplayName != nil {
		profile.DisplayName = strings.TrimSpace(*req.DisplayName)
	}
	if req.Role != nil {
		profile.Role = *req.Role
	}
	if req.CostCenter != nil {
		profile.CostCenter = trimmedOrNil(req.CostCenter)
	}
	if req.Active != nil {
		profile.Active = *req.Active
	}
	switch {
	case req.ClearManager:
		profile.ManagerID = nil
	case req.ManagerID != nil:
		managerID := strings.TrimSpace(*req.ManagerID)
		if err := s.ensureManager(ctx, managerID); err != nil {
			return nil, err
		}
		if err := s.ensureNoCycle(ctx, id, managerID); err != nil {
			return nil, err
		}
		profile.ManagerID = &managerID
	}

	if err := s.repo.Update(ctx, profile); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}

	s.record(ctx, actorID, models.AuditActionProfileUpdate, profile.ID, &before, profile)
	return profile, nil
}

// Delete deactivates a profile.
func (s *ProfileService) Delete(ctx context.Context, id, actorID string) error {
	if id == actorID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot deactivate your own profile")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete profile")
	}
	s.record(ctx, actorID, models.AuditActionProfileDelete, id, nil, nil)
	return nil
}

func (s *ProfileService) ensureManager(ctx context.Context, managerID string) error {
	manager, err := s.repo.FindByID(ctx, managerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "manager profile does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load manager")
	}
	if !manager.Active {
		return appErrors.Clone(appErrors.ErrValidation, "manager profile is inactive")
	}
	return nil
}

// ensureNoCycle walks up from the proposed manager; reaching id means id would manage itself.
func (s *ProfileService) ensureNoCycle(ctx context.Context, id, managerID string) error {
	current := managerID
	for depth := 0; depth < maxManagerDepth; depth++ {
		if current == id {
			return appErrors.Clone(appErrors.ErrManagerCycle, "manager assignment would create a cycle")
		}
		profile, err := s.repo.FindByID(ctx, current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to walk manager chain")
		}
		if profile.ManagerID == nil {
			return nil
		}
		current = *profile.ManagerID
	}
	return appErrors.Clone(appErrors.ErrManagerCycle, "manager chain is too deep")
}

func (s *ProfileService) record(ctx context.Context, actorID, action, profileID string, before, after *models.Profile) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{Action: action, Resource: "profile", ResourceID: &profileID}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		entry.NewValues, _ = json.Marshal(after)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record profile audit log", zap.String("action", action), zap.Error(err))
	}
}

func paginationFor(page, pageSize, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
