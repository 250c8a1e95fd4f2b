package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/crm-access/internal/config"
	"github.com/spec-kit/crm-access/internal/domain"
	"github.com/spec-kit/crm-access/internal/observability"
	"github.com/spec-kit/crm-access/internal/repository"
)

const tracerName = "github.com/spec-kit/crm-access/internal/service"

// AccessService evaluates roles, permissions and resource ownership. Role data
// is read from the store on every call and never cached across calls.
type AccessService struct {
	users     repository.UserRepository
	roles     repository.RoleRepository
	salesReps repository.SalesRepRepository
	clients   repository.ClientRepository
	timeout   time.Duration
	metrics   *observability.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
}

// AccessDependencies bundles collaborators for the access service.
type AccessDependencies struct {
	UserRepo     repository.UserRepository
	RoleRepo     repository.RoleRepository
	SalesRepRepo repository.SalesRepRepository
	ClientRepo   repository.ClientRepository
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// NewAccessService builds the service.
func NewAccessService(cfg config.AuthConfig, deps AccessDependencies) *AccessService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{
		users:     deps.UserRepo,
		roles:     deps.RoleRepo,
		salesReps: deps.SalesRepRepo,
		clients:   deps.ClientRepo,
		timeout:   cfg.StoreTimeout(),
		metrics:   deps.Metrics,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
}

// Roles returns the roles currently assigned to the identity.
func (s *AccessService) Roles(ctx context.Context, identity domain.Identity) ([]domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.loadRoles(ctx, identity)
}

// EffectivePermissions returns the union of permissions across the identity's roles.
func (s *AccessService) EffectivePermissions(ctx context.Context, identity domain.Identity) (domain.PermissionSet, error) {
	roles, err := s.Roles(ctx, identity)
	if err != nil {
		return nil, err
	}
	return domain.NewPermissionSet(roles), nil
}

// HasPermission reports whether permission is in the identity's effective set.
func (s *AccessService) HasPermission(ctx context.Context, identity domain.Identity, permission string) (bool, error) {
	perms, err := s.EffectivePermissions(ctx, identity)
	if err != nil {
		return false, err
	}
	return perms.Has(permission), nil
}

// HasRole reports whether the identity is assigned roleName.
func (s *AccessService) HasRole(ctx context.Context, identity domain.Identity, roleName string) (bool, error) {
	return s.HasAnyRole(ctx, identity, roleName)
}

// HasAnyRole reports whether the identity is assigned at least one of roleNames.
func (s *AccessService) HasAnyRole(ctx context.Context, identity domain.Identity, roleNames ...string) (bool, error) {
	roles, err := s.Roles(ctx, identity)
	if err != nil {
		return false, err
	}
	return hasAnyRole(roles, roleNames...), nil
}

// IsOwnerScoped reports whether the identity may act on the resource. Elevated
// roles always may; a sales rep may act on resources assigned to their linked
// profile. Missing profiles or resources resolve to false.
func (s *AccessService) IsOwnerScoped(ctx context.Context, identity domain.Identity, kind domain.ResourceKind, resourceID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	roles, err := s.loadRoles(ctx, identity)
	if err != nil {
		return false, err
	}
	return s.ownerScoped(ctx, identity, roles, domain.ResourceRef{Kind: kind, ID: resourceID})
}

// Authorize returns nil when the identity may perform permission, on target
// when it is non-nil. Elevated roles are granted unconditionally; other roles
// need the permission and, for a target, ownership of it. Denials are a
// generic forbidden error; store failures are unavailable errors.
func (s *AccessService) Authorize(ctx context.Context, identity domain.Identity, permission string, target *domain.ResourceRef) (err error) {
	ctx, span := s.tracer.Start(ctx, "AccessService.Authorize", trace.WithAttributes(
		attribute.Int64("user.id", identity.UserID),
		attribute.String("permission", permission),
	))
	defer func() {
		s.recordDecision(span, err)
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	roles, err := s.loadRoles(ctx, identity)
	if err != nil {
		return err
	}
	if hasElevatedRole(roles) {
		return nil
	}
	if !domain.NewPermissionSet(roles).Has(permission) {
		return errForbidden()
	}
	if target == nil {
		return nil
	}

	span.SetAttributes(attribute.String("resource.kind", string(target.Kind)), attribute.Int64("resource.id", target.ID))
	owned, err := s.ownerScoped(ctx, identity, roles, *target)
	if err != nil {
		return err
	}
	if !owned {
		return errForbidden()
	}
	return nil
}

func (s *AccessService) recordDecision(span trace.Span, err error) {
	switch {
	case err == nil:
		s.metrics.RecordAuthorization("allowed")
	case isUnavailable(err):
		s.metrics.RecordAuthorization("unavailable")
		span.RecordError(err)
		span.SetStatus(codes.Error, "store unavailable")
	default:
		s.metrics.RecordAuthorization("denied")
	}
}

func (s *AccessService) loadRoles(ctx context.Context, identity domain.Identity) ([]domain.Role, error) {
	roles, err := s.roles.ListForUser(ctx, identity.UserID)
	if err != nil {
		s.logger.Warn("role lookup failed", zap.Int64("user_id", identity.UserID), zap.Error(err))
		return nil, errUnavailable(err)
	}
	return roles, nil
}

func (s *AccessService) ownerScoped(ctx context.Context, identity domain.Identity, roles []domain.Role, ref domain.ResourceRef) (bool, error) {
	if hasElevatedRole(roles) {
		return true, nil
	}
	if !hasAnyRole(roles, domain.RoleSalesRep) {
		return false, nil
	}

	repID, ok, err := s.linkedSalesRep(ctx, identity)
	if err != nil || !ok {
		return false, err
	}

	switch ref.Kind {
	case domain.ResourceSalesRep:
		return ref.ID == repID, nil
	case domain.ResourceClient:
		return s.clientOwnedBy(ctx, ref.ID, repID)
	case domain.ResourceStakeholder:
		clientID, err := s.clients.GetStakeholderClient(ctx, ref.ID)
		if isNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, errUnavailable(err)
		}
		return s.clientOwnedBy(ctx, clientID, repID)
	default:
		return false, nil
	}
}

// linkedSalesRep resolves the sales rep profile sharing the user's email.
func (s *AccessService) linkedSalesRep(ctx context.Context, identity domain.Identity) (int64, bool, error) {
	user, err := s.users.GetByID(ctx, identity.UserID)
	if isNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errUnavailable(err)
	}
	if !user.IsActive {
		return 0, false, nil
	}

	rep, err := s.salesReps.GetByEmail(ctx, user.Email)
	if isNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errUnavailable(err)
	}
	return rep.ID, true, nil
}

func (s *AccessService) clientOwnedBy(ctx context.Context, clientID, repID int64) (bool, error) {
	owner, err := s.clients.GetOwner(ctx, clientID)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, errUnavailable(err)
	}
	return owner != nil && *owner == repID, nil
}

func hasElevatedRole(roles []domain.Role) bool {
	for _, role := range roles {
		if domain.IsElevated(role.Name) {
			return true
		}
	}
	return false
}

func hasAnyRole(roles []domain.Role, names ...string) bool {
	for _, role := range roles {
		for _, name := range names {
			if role.Name == name {
				return true
			}
		}
	}
	return false
}
