package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aegis-auth/aegis/internal/rbac"
	"github.com/aegis-auth/aegis/internal/shared"
	"github.com/aegis-auth/aegis/internal/users"
)

// Service orchestrates registration, login and logout.
type Service struct {
	repo   Repository
	users  *users.Service
	rbac   *rbac.Service
	tokens *TokenManager
	audit  *shared.AuditLogger
}

// NewService constructs a Service.
func NewService(repo Repository, userSvc *users.Service, rbacSvc *rbac.Service, tokens *TokenManager, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, users: userSvc, rbac: rbacSvc, tokens: tokens, audit: audit}
}

// RegisterInput carries the fields for self-registration.
type RegisterInput struct {
	Name     string
	Email    string
	Phone    *string
	Password string
}

// Register creates a new active account with the default role attached and
// logs it in immediately.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Result, error) {
	profile, err := s.users.Create(ctx, users.CreateUserInput{
		Name:     in.Name,
		Email:    in.Email,
		Phone:    in.Phone,
		Password: in.Password,
	})
	if err != nil {
		return Result{}, err
	}
	token, err := s.issueToken(ctx, profile.ID)
	if err != nil {
		return Result{}, err
	}
	s.recordAudit(ctx, "auth.register", profile.ID)
	return Result{Profile: profile, Token: token}, nil
}

// Login verifies credentials and issues a token. Wrong email and wrong
// password are indistinguishable to the caller; a deactivated account is
// reported separately after the credentials check out.
func (s *Service) Login(ctx context.Context, email, password string) (Result, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Result{}, shared.ErrInvalidCredentials
		}
		return Result{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return Result{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return Result{}, shared.ErrAccountDeactivated
	}
	token, err := s.issueToken(ctx, user.ID)
	if err != nil {
		return Result{}, err
	}
	grants, err := s.rbac.GrantsFor(ctx, user.ID)
	if err != nil {
		return Result{}, err
	}
	s.recordAudit(ctx, "auth.login", user.ID)
	return Result{Profile: users.Profile{User: user, Grants: grants}, Token: token}, nil
}

// Logout revokes the caller's token and drops its session record.
func (s *Service) Logout(ctx context.Context) error {
	principal := shared.PrincipalFromContext(ctx)
	if principal == nil {
		return shared.ErrUnauthenticated
	}
	if err := s.tokens.Revoke(ctx, principal.TokenID); err != nil {
		return err
	}
	if err := s.repo.DeleteSession(ctx, principal.TokenID); err != nil {
		return err
	}
	s.recordAudit(ctx, "auth.logout", principal.ID)
	return nil
}

// Profile loads the caller's account with its grants.
func (s *Service) Profile(ctx context.Context) (users.Profile, error) {
	principal := shared.PrincipalFromContext(ctx)
	if principal == nil {
		return users.Profile{}, shared.ErrUnauthenticated
	}
	user, err := s.repo.FindByID(ctx, principal.ID)
	if err != nil {
		return users.Profile{}, err
	}
	grants, err := s.rbac.GrantsFor(ctx, user.ID)
	if err != nil {
		return users.Profile{}, err
	}
	return users.Profile{User: user, Grants: grants}, nil
}

// PurgeExpiredSessions drops lapsed session records. Run from the worker.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx)
}

func (s *Service) issueToken(ctx context.Context, userID int64) (string, error) {
	token, err := s.tokens.Issue(ctx, userID)
	if err != nil {
		return "", err
	}
	err = s.repo.CreateSession(ctx, Session{
		TokenID:   token,
		UserID:    userID,
		ExpiresAt: time.Now().Add(s.tokens.TTL()),
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, userID int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  userID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
	})
}
