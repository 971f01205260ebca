package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kriptoproyek/backend/internal/audit"
	auditdomain "kriptoproyek/backend/internal/audit/domain"
	"kriptoproyek/backend/internal/identity/lockout"
	"kriptoproyek/backend/internal/logger"
	"kriptoproyek/backend/internal/security"
	sessiondomain "kriptoproyek/backend/internal/session/domain"
	sessionservice "kriptoproyek/backend/internal/session/service"
	userdomain "kriptoproyek/backend/internal/user/domain"
	userrepo "kriptoproyek/backend/internal/user/repository"
)

// Sentinel errors for auth service; the HTTP layer maps them to status codes.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrAccountLocked          = errors.New("account locked after too many failed sign-in attempts")
	ErrUserNotFound           = errors.New("user not found")
	// ErrInvalidInput is wrapped by every email, password and name validation failure.
	ErrInvalidInput = errors.New("invalid input")
)

const resourceSession = "session"

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ClientInfo describes the device a login comes from.
type ClientInfo struct {
	DeviceInfo string
	IPAddress  string
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	UserID    string
	Email     string
	FullName  string
	Roles     []string
}

// Profile is the public view of a user.
type Profile struct {
	UserID    string
	Email     string
	FullName  string
	CreatedAt time.Time
	Roles     []string
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error
}

// SessionAuthority is the subset of the session authority used by the auth service.
type SessionAuthority interface {
	Issue(ctx context.Context, req sessionservice.IssueRequest) (*sessiondomain.Session, error)
	Revoke(ctx context.Context, token string) (bool, error)
	RevokeAll(ctx context.Context, userID string) (int, error)
	ListActive(ctx context.Context, userID string) ([]sessiondomain.ActiveSession, error)
}

// TokenIssuer signs access credentials.
type TokenIssuer interface {
	Issue(subject security.Subject) (token string, expiresAt time.Time, err error)
}

// AuthService implements password register, login, logout and session management.
type AuthService struct {
	userRepo    UserRepo
	sessions    SessionAuthority
	tokens      TokenIssuer
	hasher      *security.Hasher
	limiter     lockout.Limiter
	auditLogger audit.AuditLogger
	log         *zap.Logger
	now         func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
// auditLogger and log may be nil.
func NewAuthService(
	userRepo UserRepo,
	sessions SessionAuthority,
	tokens TokenIssuer,
	hasher *security.Hasher,
	limiter lockout.Limiter,
	auditLogger audit.AuditLogger,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		sessions:    sessions,
		tokens:      tokens,
		hasher:      hasher,
		limiter:     limiter,
		auditLogger: auditLogger,
		log:         logger.OrNop(log),
		now:         time.Now,
	}
}

// Register creates a user with the default role. Returns the new user id.
func (s *AuthService) Register(ctx context.Context, email, password, fullName string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	fullName = strings.TrimSpace(fullName)
	if err := validateEmail(email); err != nil {
		return "", err
	}
	if err := validatePassword(password); err != nil {
		return "", err
	}
	if fullName == "" {
		return "", fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: hashed,
		Roles:        []string{userdomain.RoleUser},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, userrepo.ErrEmailTaken) {
			return "", ErrEmailAlreadyRegistered
		}
		return "", err
	}
	s.audit(ctx, user.ID, auditdomain.ActionRegister, "user", "")
	return user.ID, nil
}

// Login checks the password, then signs a credential and records it as the user's only
// valid session. Earlier sessions of the user stop validating. A signer or store failure
// fails the login.
func (s *AuthService) Login(ctx context.Context, email, password string, client ClientInfo) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.audit(ctx, "", auditdomain.ActionLoginFailure, resourceSession, "unknown_email")
		return nil, ErrInvalidCredentials
	}
	locked, err := s.limiter.Locked(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("lockout check: %w", err)
	}
	if locked {
		s.audit(ctx, user.ID, auditdomain.ActionLoginLocked, resourceSession, "")
		return nil, ErrAccountLocked
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		nowLocked, ferr := s.limiter.Fail(ctx, user.ID)
		if ferr != nil {
			s.log.Warn("lockout: failed to record attempt", zap.String("user_id", user.ID), zap.Error(ferr))
		}
		s.audit(ctx, user.ID, auditdomain.ActionLoginFailure, resourceSession, "bad_password")
		if nowLocked {
			s.audit(ctx, user.ID, auditdomain.ActionLoginLocked, resourceSession, "")
		}
		return nil, ErrInvalidCredentials
	}
	if err := s.limiter.Reset(ctx, user.ID); err != nil {
		s.log.Warn("lockout: failed to reset attempts", zap.String("user_id", user.ID), zap.Error(err))
	}

	token, expiresAt, err := s.tokens.Issue(security.Subject{
		ID:       user.ID,
		Name:     user.Email,
		Email:    user.Email,
		FullName: user.FullName,
		Roles:    user.Roles,
	})
	if err != nil {
		return nil, fmt.Errorf("sign credential: %w", err)
	}
	sess, err := s.sessions.Issue(ctx, sessionservice.IssueRequest{
		UserID:     user.ID,
		Token:      token,
		DeviceInfo: client.DeviceInfo,
		IPAddress:  client.IPAddress,
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, user.ID, auditdomain.ActionLoginSuccess, resourceSession, sess.ID)
	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		UserID:    user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Roles:     user.Roles,
	}, nil
}

// Profile returns the user's public profile.
func (s *AuthService) Profile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return &Profile{
		UserID:    user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		CreatedAt: user.CreatedAt,
		Roles:     user.Roles,
	}, nil
}

// ChangePassword replaces the user's password after checking the current one and
// revokes every session of the user.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if err := s.hasher.Compare(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	hashed, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePasswordHash(ctx, userID, hashed, s.now().UTC()); err != nil {
		return err
	}
	n, err := s.sessions.RevokeAll(ctx, userID)
	if err != nil {
		return err
	}
	s.audit(ctx, userID, auditdomain.ActionPasswordChanged, "user", fmt.Sprintf("revoked=%d", n))
	return nil
}

// Logout revokes the session recorded for token. Unknown or already revoked tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, userID, token string) error {
	revoked, err := s.sessions.Revoke(ctx, token)
	if err != nil {
		return err
	}
	if revoked {
		s.audit(ctx, userID, auditdomain.ActionLogout, resourceSession, "")
	}
	return nil
}

// LogoutAll revokes every valid session of userID and returns how many were revoked.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int, error) {
	n, err := s.sessions.RevokeAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.audit(ctx, userID, auditdomain.ActionLogoutAll, resourceSession, fmt.Sprintf("revoked=%d", n))
	return n, nil
}

// Sessions lists the user's valid sessions, most recent first.
func (s *AuthService) Sessions(ctx context.Context, userID string) ([]sessiondomain.ActiveSession, error) {
	return s.sessions.ListActive(ctx, userID)
}

func (s *AuthService) audit(ctx context.Context, userID, action, resource, metadata string) {
	if s.auditLogger != nil {
		s.auditLogger.LogEvent(ctx, userID, action, resource, metadata)
	}
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	var hasUpper, hasLower, hasNumber bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		}
	}
	if !hasUpper {
		return fmt.Errorf("%w: password must contain at least one uppercase letter", ErrInvalidInput)
	}
	if !hasLower {
		return fmt.Errorf("%w: password must contain at least one lowercase letter", ErrInvalidInput)
	}
	if !hasNumber {
		return fmt.Errorf("%w: password must contain at least one number", ErrInvalidInput)
	}
	return nil
}
