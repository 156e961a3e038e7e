package users

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/aegis-auth/aegis/internal/rbac"
	"github.com/aegis-auth/aegis/internal/shared"
)

var (
	// ErrEmailTaken is returned when the requested email already belongs to
	// another account.
	ErrEmailTaken = errors.New("users: email already taken")
	// ErrSelfDeletion is returned when a caller attempts to delete their own
	// account.
	ErrSelfDeletion = errors.New("users: cannot delete own account")
	// ErrSuperAdminDeletion is returned when the deletion target holds the
	// super admin role.
	ErrSuperAdminDeletion = errors.New("users: cannot delete super admin")
	// ErrUnknownRole is returned when a role sync references a role id that
	// does not exist.
	ErrUnknownRole = errors.New("users: unknown role")
)

// Service orchestrates account management.
type Service struct {
	repo  Repository
	rbac  *rbac.Service
	audit *shared.AuditLogger
}

// NewService constructs a Service.
func NewService(repo Repository, rbacSvc *rbac.Service, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, rbac: rbacSvc, audit: audit}
}

// List returns one page of users with their grants.
func (s *Service) List(ctx context.Context, page, perPage int) ([]Profile, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	list, total, err := s.repo.ListUsers(ctx, p)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	profiles := make([]Profile, 0, len(list))
	for _, user := range list {
		grants, err := s.rbac.GrantsFor(ctx, user.ID)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		profiles = append(profiles, Profile{User: user, Grants: grants})
	}
	return profiles, shared.NewPagination(page, perPage, total), nil
}

// Get fetches a user with their grants.
func (s *Service) Get(ctx context.Context, id int64) (Profile, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	grants, err := s.rbac.GrantsFor(ctx, user.ID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{User: user, Grants: grants}, nil
}

// CreateUserInput carries the fields for a new account.
type CreateUserInput struct {
	Name     string
	Email    string
	Phone    *string
	Password string
	IsActive *bool
	// RoleIDs is applied wholesale when SyncRoles is set; otherwise the
	// default role is attached when it exists.
	RoleIDs   []int64
	SyncRoles bool
}

// Create registers a new account. The email is normalised to lower case and
// must be unique; the password is stored as a bcrypt digest.
func (s *Service) Create(ctx context.Context, in CreateUserInput) (Profile, error) {
	email := normalizeEmail(in.Email)
	if err := s.checkEmailFree(ctx, email, 0); err != nil {
		return Profile{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return Profile{}, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	user, err := s.repo.CreateUser(ctx, User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		Phone:        normalizePhone(in.Phone),
		PasswordHash: string(hash),
		IsActive:     active,
	})
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return Profile{}, ErrEmailTaken
		}
		return Profile{}, err
	}
	if in.SyncRoles {
		if err := s.replaceRoles(ctx, user.ID, in.RoleIDs); err != nil {
			return Profile{}, err
		}
	} else if err := s.rbac.AssignDefaultRole(ctx, user.ID); err != nil {
		return Profile{}, err
	}
	s.recordAudit(ctx, "user.create", user.ID, map[string]any{"email": user.Email})
	return s.Get(ctx, user.ID)
}

// UpdateUserInput carries partial updates; nil fields are left as-is. A
// present but blank Phone clears the stored number.
type UpdateUserInput struct {
	Name      *string
	Email     *string
	Phone     *string
	Password  *string
	IsActive  *bool
	RoleIDs   []int64
	SyncRoles bool
}

// Update applies administrative edits to an account. When SyncRoles is set the
// role set is replaced wholesale.
func (s *Service) Update(ctx context.Context, id int64, in UpdateUserInput) (Profile, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if err := s.checkEmailFree(ctx, email, user.ID); err != nil {
			return Profile{}, err
		}
		user.Email = email
	}
	if in.Phone != nil {
		user.Phone = normalizePhone(in.Phone)
	}
	if in.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost)
		if err != nil {
			return Profile{}, err
		}
		user.PasswordHash = string(hash)
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}
	updated, err := s.repo.UpdateUser(ctx, user)
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return Profile{}, ErrEmailTaken
		}
		return Profile{}, err
	}
	if in.SyncRoles {
		if err := s.replaceRoles(ctx, updated.ID, in.RoleIDs); err != nil {
			return Profile{}, err
		}
	}
	s.recordAudit(ctx, "user.update", updated.ID, map[string]any{"email": updated.Email})
	return s.Get(ctx, updated.ID)
}

// Delete removes an account. Callers cannot delete themselves, and accounts
// holding the super admin role cannot be deleted at all.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if p := shared.PrincipalFromContext(ctx); p != nil && p.ID == id {
		return ErrSelfDeletion
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	grants, err := s.rbac.GrantsFor(ctx, user.ID)
	if err != nil {
		return err
	}
	if grants.HasRole(rbac.SuperAdminRoleSlug) {
		return ErrSuperAdminDeletion
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "user.delete", id, map[string]any{"email": user.Email})
	return nil
}

// AssignRoles replaces a user's role set wholesale.
func (s *Service) AssignRoles(ctx context.Context, id int64, roleIDs []int64) (Profile, error) {
	if _, err := s.repo.GetUser(ctx, id); err != nil {
		return Profile{}, err
	}
	if err := s.replaceRoles(ctx, id, roleIDs); err != nil {
		return Profile{}, err
	}
	return s.Get(ctx, id)
}

// replaceRoles swaps the role set, translating a missing role reference into
// ErrUnknownRole so it is not mistaken for a missing user.
func (s *Service) replaceRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	if err := s.rbac.ReplaceUserRoles(ctx, userID, roleIDs); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return ErrUnknownRole
		}
		return err
	}
	return nil
}

func (s *Service) checkEmailFree(ctx context.Context, email string, selfID int64) error {
	existing, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	if existing.ID == selfID {
		return nil
	}
	return ErrEmailTaken
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizePhone trims the number and maps a blank value to nil.
func normalizePhone(phone *string) *string {
	if phone == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*phone)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func (s *Service) recordAudit(ctx context.Context, action string, userID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	var actorID int64
	if p := shared.PrincipalFromContext(ctx); p != nil {
		actorID = p.ID
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     meta,
	})
}
