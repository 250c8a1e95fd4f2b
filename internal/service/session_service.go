package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/crm-access/internal/auth"
	"github.com/spec-kit/crm-access/internal/config"
	"github.com/spec-kit/crm-access/internal/domain"
	"github.com/spec-kit/crm-access/internal/events"
	"github.com/spec-kit/crm-access/internal/observability"
	"github.com/spec-kit/crm-access/internal/repository"
	apperrors "github.com/spec-kit/crm-access/pkg/util/errorutil"
)

const dummyPassword = "timing-equaliser-not-a-real-password"

// TokenIssuer mints session tokens for a user id.
type TokenIssuer interface {
	Issue(userID int64) (string, domain.Identity, error)
}

// LoginThrottle counts failed logins per email.
type LoginThrottle interface {
	Blocked(ctx context.Context, email string) (bool, error)
	RecordFailure(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User     domain.UserView
	Identity domain.Identity
	Token    string
}

// SessionService orchestrates login, logout, current-user resolution and registration.
type SessionService struct {
	users       repository.UserRepository
	roles       repository.RoleRepository
	issuer      TokenIssuer
	verifier    auth.Verifier
	throttle    LoginThrottle
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	tracer      trace.Tracer
	bcryptCost  int
	defaultRole string
	timeout     time.Duration
	dummyHash   string
	now         func() time.Time
	background  sync.WaitGroup
}

// SessionDependencies bundles collaborators for the session service.
type SessionDependencies struct {
	UserRepo   repository.UserRepository
	RoleRepo   repository.RoleRepository
	Issuer     TokenIssuer
	Verifier   auth.Verifier
	Throttle   LoginThrottle
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewSessionService builds the service. The issuer and verifier must be the
// process-wide instances built from validated configuration.
func NewSessionService(cfg config.AuthConfig, deps SessionDependencies) (*SessionService, error) {
	dummyHash, err := auth.HashPassword(dummyPassword, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		users:       deps.UserRepo,
		roles:       deps.RoleRepo,
		issuer:      deps.Issuer,
		verifier:    deps.Verifier,
		throttle:    deps.Throttle,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      logger,
		tracer:      otel.Tracer(tracerName),
		bcryptCost:  cfg.BcryptCost,
		defaultRole: cfg.DefaultRole,
		timeout:     cfg.StoreTimeout(),
		dummyHash:   dummyHash,
		now:         time.Now,
	}, nil
}

// Login verifies credentials and issues a session token. Unknown emails,
// inactive accounts and wrong passwords fail identically.
func (s *SessionService) Login(ctx context.Context, email, password string) (result *LoginResult, err error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.Login")
	defer func() {
		if err != nil && isUnavailable(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "store unavailable")
		}
		span.End()
	}()

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperrors.NewValidationError("email and password are required", nil)
	}

	if s.loginBlocked(ctx, email) {
		s.metrics.RecordLogin("throttled")
		s.publish(ctx, events.NewEvent(events.EventLoginFailed, nil, events.LoginFailedPayload{Email: email, Reason: "throttled"}))
		return nil, apperrors.NewTooManyRequests("too many failed login attempts, try again later")
	}

	user, err := s.lookupUser(ctx, email)
	if err != nil && !isNotFound(err) {
		s.metrics.RecordLogin("unavailable")
		return nil, errUnavailable(err)
	}

	if user == nil || !user.IsActive {
		// Same bcrypt cost as a real comparison.
		_ = auth.ComparePassword(s.dummyHash, password)
		return nil, s.loginFailed(ctx, email, "unknown_or_inactive")
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, s.loginFailed(ctx, email, "password_mismatch")
	}

	roles, err := s.listRoles(ctx, user.ID)
	if err != nil {
		s.metrics.RecordLogin("unavailable")
		return nil, errUnavailable(err)
	}

	token, identity, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	span.SetAttributes(attribute.Int64("user.id", user.ID))

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, email); err != nil {
			s.logger.Warn("login throttle reset failed", zap.Error(err))
		}
	}
	s.touchLastLogin(user.ID)

	userID := user.ID
	s.publish(ctx, events.NewEvent(events.EventUserLoggedIn, &userID, nil))
	s.metrics.RecordLogin("success")

	return &LoginResult{
		User:     buildView(user, roles),
		Identity: identity,
		Token:    token,
	}, nil
}

// Logout has no server-side state to invalidate; the caller clears the cookie.
func (s *SessionService) Logout(ctx context.Context, identity *domain.Identity) {
	var userID *int64
	if identity != nil {
		id := identity.UserID
		userID = &id
	}
	s.publish(ctx, events.NewEvent(events.EventUserLoggedOut, userID, nil))
}

// ResolveCurrentUser verifies token and re-reads the user and roles from the
// store. It returns nil without error for invalid tokens and for missing or
// inactive users.
func (s *SessionService) ResolveCurrentUser(ctx context.Context, token string) (view *domain.UserView, err error) {
	if token == "" {
		return nil, nil
	}
	identity, err := s.verifier.Verify(token)
	if err != nil {
		return nil, nil
	}

	ctx, span := s.tracer.Start(ctx, "SessionService.ResolveCurrentUser", trace.WithAttributes(
		attribute.Int64("user.id", identity.UserID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "store unavailable")
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.GetByID(ctx, identity.UserID)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errUnavailable(err)
	}
	if !user.IsActive {
		return nil, nil
	}

	roles, err := s.roles.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, errUnavailable(err)
	}
	result := buildView(user, roles)
	return &result, nil
}

// Register creates an active account and assigns the default role. A failed
// role assignment is logged and does not fail registration.
func (s *SessionService) Register(ctx context.Context, name, email, password string) (*domain.UserView, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", map[string]any{"field": "name"})
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.NewValidationError("email is invalid", map[string]any{"field": "email"})
	}
	if err := auth.ValidatePassword(password); err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperrors.Wrap("PASSWORD_TOO_LONG",
				fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordLength), http.StatusBadRequest, err)
		}
		return nil, apperrors.Wrap("WEAK_PASSWORD",
			fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength), http.StatusBadRequest, err)
	}

	existing, err := s.lookupUser(ctx, email)
	if err != nil && !isNotFound(err) {
		return nil, errUnavailable(err)
	}
	if existing != nil && existing.IsActive {
		return nil, errDuplicateEmail()
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.createUser(ctx, user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, errDuplicateEmail()
		}
		return nil, errUnavailable(err)
	}
	userID := user.ID

	if err := s.assignDefaultRole(ctx, user.ID); err != nil {
		s.logger.Warn("default role assignment failed",
			zap.Int64("user_id", user.ID),
			zap.String("role", s.defaultRole),
			zap.Error(err))
		s.publish(ctx, events.NewEvent(events.EventRoleAssignmentFailed, &userID, events.RoleAssignmentFailedPayload{
			Role:  s.defaultRole,
			Error: err.Error(),
		}))
	}

	roles, err := s.listRoles(ctx, user.ID)
	if err != nil {
		s.logger.Warn("role lookup after registration failed", zap.Int64("user_id", user.ID), zap.Error(err))
		roles = nil
	}

	s.publish(ctx, events.NewEvent(events.EventUserRegistered, &userID, events.UserRegisteredPayload{
		Email: email,
		Role:  s.defaultRole,
	}))

	view := buildView(user, roles)
	return &view, nil
}

// lookupUser and the helpers below run each store call under its own
// timeout; bcrypt work between calls is not charged to the store budget.
func (s *SessionService) lookupUser(ctx context.Context, email string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.users.GetByEmail(ctx, email)
}

func (s *SessionService) listRoles(ctx context.Context, userID int64) ([]domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.roles.ListForUser(ctx, userID)
}

func (s *SessionService) createUser(ctx context.Context, user *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.users.Create(ctx, user)
}

func (s *SessionService) assignDefaultRole(ctx context.Context, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.roles.AssignByName(ctx, userID, s.defaultRole)
}

// Wait blocks until background last-login updates have finished.
func (s *SessionService) Wait() {
	s.background.Wait()
}

func (s *SessionService) loginBlocked(ctx context.Context, email string) bool {
	if s.throttle == nil {
		return false
	}
	blocked, err := s.throttle.Blocked(ctx, email)
	if err != nil {
		s.logger.Warn("login throttle unavailable", zap.Error(err))
		return false
	}
	return blocked
}

func (s *SessionService) loginFailed(ctx context.Context, email, reason string) error {
	if s.throttle != nil {
		if err := s.throttle.RecordFailure(ctx, email); err != nil {
			s.logger.Warn("login throttle record failed", zap.Error(err))
		}
	}
	s.publish(ctx, events.NewEvent(events.EventLoginFailed, nil, events.LoginFailedPayload{Email: email, Reason: reason}))
	s.metrics.RecordLogin("invalid_credentials")
	return errInvalidCredentials()
}

// touchLastLogin updates the last-login timestamp off the request path.
func (s *SessionService) touchLastLogin(userID int64) {
	at := s.now().UTC()
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.users.UpdateLastLogin(ctx, userID, at); err != nil {
			s.logger.Warn("last login update failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}()
}

func (s *SessionService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func buildView(user *domain.User, roles []domain.Role) domain.UserView {
	return domain.UserView{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		Roles:       domain.RoleNames(roles),
		Permissions: domain.NewPermissionSet(roles).Sorted(),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
