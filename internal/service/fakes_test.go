package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/crm-access/internal/auth"
	"github.com/spec-kit/crm-access/internal/domain"
	"github.com/spec-kit/crm-access/internal/repository"
)

// fakeStore is an in-memory store shared by the fake repositories.
type fakeStore struct {
	mu           sync.Mutex
	nextUserID   int64
	users        map[int64]*domain.User
	roles        map[string]domain.Role
	assignments  map[int64][]string
	salesReps    map[int64]*domain.SalesRep
	clients      map[int64]*domain.Client
	stakeholders map[int64]*domain.Stakeholder
	lastLogins   map[int64]time.Time

	err          error
	block        bool
	assignErr    error
	lastLoginErr error

	// deadlines records the context deadline seen by each store call.
	deadlines []time.Time
}

func newFakeStore() *fakeStore {
	all := []string{
		domain.PermClientsRead, domain.PermClientsWrite,
		domain.PermStakeholdersRead, domain.PermStakeholdersWrite,
		domain.PermSalesRepsRead, domain.PermSalesRepsWrite,
		domain.PermReportsRead, domain.PermUsersManage, domain.PermRolesManage,
	}
	return &fakeStore{
		nextUserID: 100,
		users:      map[int64]*domain.User{},
		roles: map[string]domain.Role{
			domain.RoleAdmin:        {ID: 1, Name: domain.RoleAdmin, Permissions: all},
			domain.RoleSalesManager: {ID: 2, Name: domain.RoleSalesManager, Permissions: all[:7]},
			domain.RoleSalesRep: {ID: 3, Name: domain.RoleSalesRep, Permissions: []string{
				domain.PermClientsRead, domain.PermClientsWrite,
				domain.PermStakeholdersRead, domain.PermStakeholdersWrite,
				domain.PermSalesRepsWrite,
			}},
			domain.RoleViewer: {ID: 4, Name: domain.RoleViewer, Permissions: []string{
				domain.PermClientsRead, domain.PermStakeholdersRead,
			}},
		},
		assignments:  map[int64][]string{},
		salesReps:    map[int64]*domain.SalesRep{},
		clients:      map[int64]*domain.Client{},
		stakeholders: map[int64]*domain.Stakeholder{},
		lastLogins:   map[int64]time.Time{},
	}
}

func (s *fakeStore) fail(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		s.mu.Lock()
		s.deadlines = append(s.deadlines, deadline)
		s.mu.Unlock()
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func (s *fakeStore) addUser(id int64, email, password string, active bool, roles ...string) {
	hash, err := auth.HashPassword(password, 4)
	if err != nil {
		panic(err)
	}
	s.users[id] = &domain.User{ID: id, Name: strings.Split(email, "@")[0], Email: email, PasswordHash: hash, IsActive: active}
	s.assignments[id] = roles
}

func (s *fakeStore) repos() (repository.UserRepository, repository.RoleRepository, repository.SalesRepRepository, repository.ClientRepository) {
	return &fakeUsers{s}, &fakeRoles{s}, &fakeSalesReps{s}, &fakeClients{s}
}

type fakeUsers struct{ s *fakeStore }

func (f *fakeUsers) Create(ctx context.Context, user *domain.User) error {
	if err := f.s.fail(ctx); err != nil {
		return err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.nextUserID++
	user.ID = f.s.nextUserID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	f.s.users[user.ID] = &copied
	return nil
}

func (f *fakeUsers) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if err := f.s.fail(ctx); err != nil {
		return nil, err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	user, ok := f.s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := f.s.fail(ctx); err != nil {
		return nil, err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var found *domain.User
	for _, user := range f.s.users {
		if !strings.EqualFold(user.Email, email) {
			continue
		}
		if found == nil || (user.IsActive && !found.IsActive) {
			found = user
		}
	}
	if found == nil {
		return nil, pgx.ErrNoRows
	}
	copied := *found
	return &copied, nil
}

func (f *fakeUsers) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.lastLoginErr != nil {
		return f.s.lastLoginErr
	}
	f.s.lastLogins[id] = at
	return nil
}

type fakeRoles struct{ s *fakeStore }

func (f *fakeRoles) ListForUser(ctx context.Context, userID int64) ([]domain.Role, error) {
	if err := f.s.fail(ctx); err != nil {
		return nil, err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	user, ok := f.s.users[userID]
	if !ok || !user.IsActive {
		return nil, nil
	}
	var roles []domain.Role
	for _, name := range f.s.assignments[userID] {
		roles = append(roles, f.s.roles[name])
	}
	return roles, nil
}

func (f *fakeRoles) AssignByName(ctx context.Context, userID int64, roleName string) error {
	if err := f.s.fail(ctx); err != nil {
		return err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.assignErr != nil {
		return f.s.assignErr
	}
	if _, ok := f.s.roles[roleName]; !ok {
		return pgx.ErrNoRows
	}
	for _, existing := range f.s.assignments[userID] {
		if existing == roleName {
			return nil
		}
	}
	f.s.assignments[userID] = append(f.s.assignments[userID], roleName)
	return nil
}

type fakeSalesReps struct{ s *fakeStore }

func (f *fakeSalesReps) GetByEmail(ctx context.Context, email string) (*domain.SalesRep, error) {
	if err := f.s.fail(ctx); err != nil {
		return nil, err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, rep := range f.s.salesReps {
		if strings.EqualFold(rep.Email, email) {
			copied := *rep
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeSalesReps) List(ctx context.Context, _, _ int) ([]domain.SalesRep, error) {
	if err := f.s.fail(ctx); err != nil {
		return nil, err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var reps []domain.SalesRep
	for _, rep := range f.s.salesReps {
		reps = append(reps, *rep)
	}
	sort.Slice(reps, func(i, j int) bool { return reps[i].ID < reps[j].ID })
	return reps, nil
}

func (f *fakeSalesReps) UpdateName(ctx context.Context, id int64, name string) error {
	if err := f.s.fail(ctx); err != nil {
		return err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	rep, ok := f.s.salesReps[id]
	if !ok {
		return pgx.ErrNoRows
	}
	rep.Name = name
	return nil
}

type fakeClients struct{ s *fakeStore }

func (f *fakeClients) GetOwner(ctx context.Context, clientID int64) (*int64, error) {
	if err := f.s.fail(ctx); err != nil {
		return nil, err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	client, ok := f.s.clients[clientID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return client.SalesRepID, nil
}

func (f *fakeClients) GetStakeholderClient(ctx context.Context, stakeholderID int64) (int64, error) {
	if err := f.s.fail(ctx); err != nil {
		return 0, err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	stakeholder, ok := f.s.stakeholders[stakeholderID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	return stakeholder.ClientID, nil
}

func (f *fakeClients) List(ctx context.Context, filter repository.ClientFilter) ([]domain.Client, error) {
	if err := f.s.fail(ctx); err != nil {
		return nil, err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var result []domain.Client
	for _, client := range f.s.clients {
		if filter.SalesRepID != nil && (client.SalesRepID == nil || *client.SalesRepID != *filter.SalesRepID) {
			continue
		}
		result = append(result, *client)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (f *fakeClients) UpdateName(ctx context.Context, id int64, name string) error {
	if err := f.s.fail(ctx); err != nil {
		return err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	client, ok := f.s.clients[id]
	if !ok {
		return pgx.ErrNoRows
	}
	client.Name = name
	return nil
}

func (f *fakeClients) UpdateStakeholderName(ctx context.Context, id int64, name string) error {
	if err := f.s.fail(ctx); err != nil {
		return err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	stakeholder, ok := f.s.stakeholders[id]
	if !ok {
		return pgx.ErrNoRows
	}
	stakeholder.Name = name
	return nil
}

type fakeThrottle struct {
	mu       sync.Mutex
	blocked  bool
	err      error
	failures map[string]int
	resets   int
}

func (f *fakeThrottle) Blocked(context.Context, string) (bool, error) {
	return f.blocked, f.err
}

func (f *fakeThrottle) RecordFailure(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures == nil {
		f.failures = map[string]int{}
	}
	f.failures[email]++
	return f.err
}

func (f *fakeThrottle) Reset(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return f.err
}

var errStoreDown = errors.New("connection refused")

func int64Ptr(v int64) *int64 { return &v }
