package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spec-kit/crm-access/internal/auth"
	"github.com/spec-kit/crm-access/internal/config"
	"github.com/spec-kit/crm-access/internal/domain"
	"github.com/spec-kit/crm-access/internal/observability"
	apperrors "github.com/spec-kit/crm-access/pkg/util/errorutil"
)

const (
	adminID        int64 = 1
	repID          int64 = 2
	orphanRepID    int64 = 3
	viewerID       int64 = 4
	managerID      int64 = 5
	inactiveRepID  int64 = 6
	ownProfileID   int64 = 10
	otherProfileID int64 = 11
	ownClientID    int64 = 100
	otherClientID  int64 = 101
	freeClientID   int64 = 102
	ownStakeID     int64 = 1000
	otherStakeID   int64 = 1001
)

var testAuthConfig = config.AuthConfig{
	BcryptCost:         4,
	DefaultRole:        domain.RoleViewer,
	StoreTimeoutMillis: 200,
}

func seededStore() *fakeStore {
	s := newFakeStore()
	s.addUser(adminID, "admin@example.com", "admin123", true, domain.RoleAdmin)
	s.addUser(repID, "rep@example.com", "rep-pass", true, domain.RoleSalesRep)
	s.addUser(orphanRepID, "orphan@example.com", "orphan-pass", true, domain.RoleSalesRep)
	s.addUser(viewerID, "viewer@example.com", "viewer-pass", true, domain.RoleViewer)
	s.addUser(managerID, "manager@example.com", "manager-pass", true, domain.RoleSalesManager)
	s.addUser(inactiveRepID, "gone@example.com", "gone-pass", false, domain.RoleSalesRep)

	s.salesReps[ownProfileID] = &domain.SalesRep{ID: ownProfileID, Name: "Rep", Email: "REP@example.com"}
	s.salesReps[otherProfileID] = &domain.SalesRep{ID: otherProfileID, Name: "Other", Email: "other@example.com"}
	s.salesReps[12] = &domain.SalesRep{ID: 12, Name: "Gone", Email: "gone@example.com"}

	s.clients[ownClientID] = &domain.Client{ID: ownClientID, Name: "Acme", SalesRepID: int64Ptr(ownProfileID)}
	s.clients[otherClientID] = &domain.Client{ID: otherClientID, Name: "Globex", SalesRepID: int64Ptr(otherProfileID)}
	s.clients[freeClientID] = &domain.Client{ID: freeClientID, Name: "Initech"}

	s.stakeholders[ownStakeID] = &domain.Stakeholder{ID: ownStakeID, ClientID: ownClientID, Name: "Wile"}
	s.stakeholders[otherStakeID] = &domain.Stakeholder{ID: otherStakeID, ClientID: otherClientID, Name: "Hank"}
	return s
}

func newAccessService(store *fakeStore, metrics *observability.Metrics) *AccessService {
	users, roles, reps, clients := store.repos()
	return NewAccessService(testAuthConfig, AccessDependencies{
		UserRepo:     users,
		RoleRepo:     roles,
		SalesRepRepo: reps,
		ClientRepo:   clients,
		Metrics:      metrics,
	})
}

func identity(id int64) domain.Identity {
	return domain.Identity{UserID: id}
}

func ref(kind domain.ResourceKind, id int64) *domain.ResourceRef {
	return &domain.ResourceRef{Kind: kind, ID: id}
}

func TestAuthorize(t *testing.T) {
	svc := newAccessService(seededStore(), nil)

	tests := []struct {
		name       string
		userID     int64
		permission string
		target     *domain.ResourceRef
		allowed    bool
	}{
		{"admin any permission", adminID, domain.PermRolesManage, nil, true},
		{"admin edits any client", adminID, domain.PermClientsWrite, ref(domain.ResourceClient, otherClientID), true},
		{"manager edits any client", managerID, domain.PermClientsWrite, ref(domain.ResourceClient, otherClientID), true},
		{"manager unlisted permission still granted", managerID, domain.PermUsersManage, nil, true},
		{"rep reads client list", repID, domain.PermClientsRead, nil, true},
		{"rep edits own client", repID, domain.PermClientsWrite, ref(domain.ResourceClient, ownClientID), true},
		{"rep edits other client", repID, domain.PermClientsWrite, ref(domain.ResourceClient, otherClientID), false},
		{"rep edits unassigned client", repID, domain.PermClientsWrite, ref(domain.ResourceClient, freeClientID), false},
		{"rep edits missing client", repID, domain.PermClientsWrite, ref(domain.ResourceClient, 999), false},
		{"rep edits own stakeholder", repID, domain.PermStakeholdersWrite, ref(domain.ResourceStakeholder, ownStakeID), true},
		{"rep edits other stakeholder", repID, domain.PermStakeholdersWrite, ref(domain.ResourceStakeholder, otherStakeID), false},
		{"rep edits own profile", repID, domain.PermSalesRepsWrite, ref(domain.ResourceSalesRep, ownProfileID), true},
		{"rep edits other profile", repID, domain.PermSalesRepsWrite, ref(domain.ResourceSalesRep, otherProfileID), false},
		{"rep lacks users:manage", repID, domain.PermUsersManage, nil, false},
		{"orphan rep edits client", orphanRepID, domain.PermClientsWrite, ref(domain.ResourceClient, ownClientID), false},
		{"viewer reads", viewerID, domain.PermClientsRead, nil, true},
		{"viewer writes", viewerID, domain.PermClientsWrite, nil, false},
		{"inactive user", inactiveRepID, domain.PermClientsRead, nil, false},
		{"unknown user", 999, domain.PermClientsRead, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Authorize(context.Background(), identity(tt.userID), tt.permission, tt.target)
			if tt.allowed {
				if err != nil {
					t.Fatalf("expected access, got %v", err)
				}
				return
			}
			if !errors.Is(err, auth.ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
			derr := apperrors.ToDomainError(err)
			if derr.HTTPStatus != http.StatusForbidden || derr.Message != "forbidden" {
				t.Fatalf("denial must be a generic 403, got %d %q", derr.HTTPStatus, derr.Message)
			}
		})
	}
}

func TestIsOwnerScopedFailsClosedWithoutProfile(t *testing.T) {
	svc := newAccessService(seededStore(), nil)
	ctx := context.Background()

	targets := []domain.ResourceRef{
		{Kind: domain.ResourceClient, ID: ownClientID},
		{Kind: domain.ResourceClient, ID: otherClientID},
		{Kind: domain.ResourceClient, ID: freeClientID},
		{Kind: domain.ResourceStakeholder, ID: ownStakeID},
		{Kind: domain.ResourceSalesRep, ID: ownProfileID},
		{Kind: domain.ResourceSalesRep, ID: 0},
		{Kind: "unknown", ID: 1},
	}
	for _, target := range targets {
		owned, err := svc.IsOwnerScoped(ctx, identity(orphanRepID), target.Kind, target.ID)
		if err != nil {
			t.Fatalf("IsOwnerScoped(%v): %v", target, err)
		}
		if owned {
			t.Fatalf("rep without profile must not own %v", target)
		}
	}
}

func TestIsOwnerScoped(t *testing.T) {
	svc := newAccessService(seededStore(), nil)
	ctx := context.Background()

	tests := []struct {
		userID int64
		kind   domain.ResourceKind
		id     int64
		want   bool
	}{
		{adminID, domain.ResourceClient, otherClientID, true},
		{managerID, domain.ResourceStakeholder, otherStakeID, true},
		{repID, domain.ResourceClient, ownClientID, true},
		{repID, domain.ResourceStakeholder, ownStakeID, true},
		{repID, domain.ResourceStakeholder, 9999, false},
		{viewerID, domain.ResourceClient, ownClientID, false},
		{inactiveRepID, domain.ResourceSalesRep, 12, false},
	}
	for _, tt := range tests {
		got, err := svc.IsOwnerScoped(ctx, identity(tt.userID), tt.kind, tt.id)
		if err != nil {
			t.Fatalf("IsOwnerScoped: %v", err)
		}
		if got != tt.want {
			t.Errorf("IsOwnerScoped(user %d, %s %d) = %v, want %v", tt.userID, tt.kind, tt.id, got, tt.want)
		}
	}
}

func TestHasPermissionIsMonotonicInRoles(t *testing.T) {
	store := seededStore()
	svc := newAccessService(store, nil)
	ctx := context.Background()
	names := []string{domain.RoleViewer, domain.RoleSalesRep, domain.RoleSalesManager, domain.RoleAdmin}
	const userID int64 = 50
	store.addUser(userID, "mono@example.com", "mono-pass", true)

	allPerms := store.roles[domain.RoleAdmin].Permissions
	for mask := 0; mask < 1<<len(names); mask++ {
		var base []string
		for i, name := range names {
			if mask&(1<<i) != 0 {
				base = append(base, name)
			}
		}
		store.assignments[userID] = base
		before, err := svc.EffectivePermissions(ctx, identity(userID))
		if err != nil {
			t.Fatalf("EffectivePermissions: %v", err)
		}

		for _, extra := range names {
			store.assignments[userID] = append(append([]string{}, base...), extra)
			after, err := svc.EffectivePermissions(ctx, identity(userID))
			if err != nil {
				t.Fatalf("EffectivePermissions: %v", err)
			}
			for _, perm := range allPerms {
				if before.Has(perm) && !after.Has(perm) {
					t.Fatalf("adding %s to %v removed %s", extra, base, perm)
				}
			}
		}
	}
}

func TestRoleChangesApplyImmediately(t *testing.T) {
	store := seededStore()
	svc := newAccessService(store, nil)
	ctx := context.Background()

	ok, err := svc.HasPermission(ctx, identity(viewerID), domain.PermClientsWrite)
	if err != nil || ok {
		t.Fatalf("viewer write = %v, %v", ok, err)
	}
	store.assignments[viewerID] = []string{domain.RoleViewer, domain.RoleSalesRep}
	ok, err = svc.HasPermission(ctx, identity(viewerID), domain.PermClientsWrite)
	if err != nil || !ok {
		t.Fatalf("after promotion write = %v, %v", ok, err)
	}

	isRep, err := svc.HasRole(ctx, identity(viewerID), domain.RoleSalesRep)
	if err != nil || !isRep {
		t.Fatalf("HasRole = %v, %v", isRep, err)
	}
	isAdmin, err := svc.HasAnyRole(ctx, identity(viewerID), domain.RoleAdmin, domain.RoleSalesManager)
	if err != nil || isAdmin {
		t.Fatalf("HasAnyRole = %v, %v", isAdmin, err)
	}
}

func TestAuthorizeStoreFailureIsUnavailable(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeStore)
	}{
		{name: "error", setup: func(s *fakeStore) { s.err = errStoreDown }},
		{name: "timeout", setup: func(s *fakeStore) { s.block = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seededStore()
			tt.setup(store)
			metrics := observability.NewMetrics()
			svc := newAccessService(store, metrics)

			err := svc.Authorize(context.Background(), identity(adminID), domain.PermClientsRead, nil)
			if !errors.Is(err, auth.ErrUnavailable) {
				t.Fatalf("expected ErrUnavailable, got %v", err)
			}
			if errors.Is(err, auth.ErrUnauthorized) {
				t.Fatal("unavailable must be distinct from a denial")
			}
			if status := apperrors.ToDomainError(err).HTTPStatus; status != http.StatusServiceUnavailable {
				t.Fatalf("status = %d, want 503", status)
			}

			if _, err := svc.IsOwnerScoped(context.Background(), identity(repID), domain.ResourceClient, ownClientID); !errors.Is(err, auth.ErrUnavailable) {
				t.Fatalf("IsOwnerScoped error = %v, want ErrUnavailable", err)
			}
		})
	}
}

func TestAuthorizeRecordsDecisions(t *testing.T) {
	metrics := observability.NewMetrics()
	svc := newAccessService(seededStore(), metrics)
	ctx := context.Background()

	_ = svc.Authorize(ctx, identity(adminID), domain.PermClientsRead, nil)
	_ = svc.Authorize(ctx, identity(viewerID), domain.PermClientsWrite, nil)

	out := scrapeMetrics(t, metrics)
	for _, want := range []string{
		`crm_access_authorization_decisions_total{result="allowed"} 1`,
		`crm_access_authorization_decisions_total{result="denied"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q:\n%s", want, out)
		}
	}
}

func scrapeMetrics(t *testing.T, metrics *observability.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}
