// Package panelstest provides in-memory fakes of the panel service and the
// notifier for tests.
package panelstest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"resellerhq/warden/pkg/marzban"
	"resellerhq/warden/pkg/panels"
)

// MockClient is an in-memory implementation of panels.Client.
type MockClient struct {
	mu sync.Mutex

	users     map[string]panels.RemoteUser
	passwords map[string]string

	failRotate  bool
	failList    bool
	failStats   bool
	failUsers   map[string]bool
	rotateCalls int
	statusCalls int
	deleted     []string
}

// NewMockClient creates an empty mock panel service.
func NewMockClient() *MockClient {
	return &MockClient{
		users:     make(map[string]panels.RemoteUser),
		passwords: make(map[string]string),
		failUsers: make(map[string]bool),
	}
}

// AddUser adds a delegated user owned by u.Admin.
func (m *MockClient) AddUser(u panels.RemoteUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Username] = u
}

// SetPassword seeds the remote password of an admin.
func (m *MockClient) SetPassword(admin, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passwords[admin] = password
}

// Password returns the remote password of an admin.
func (m *MockClient) Password(admin string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.passwords[admin]
}

// User returns a delegated user.
func (m *MockClient) User(username string) (panels.RemoteUser, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	return u, ok
}

// FailRotate makes RotatePassword fail.
func (m *MockClient) FailRotate(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRotate = fail
}

// FailList makes ListUsers fail.
func (m *MockClient) FailList(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failList = fail
}

// FailStats makes GetStats fail.
func (m *MockClient) FailStats(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStats = fail
}

// FailUser makes status changes and deletes of one user fail.
func (m *MockClient) FailUser(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUsers[username] = true
}

// RotateCalls returns the number of RotatePassword calls.
func (m *MockClient) RotateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotateCalls
}

// StatusCalls returns the number of SetUserStatus calls.
func (m *MockClient) StatusCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls
}

// Deleted returns the users removed through DeleteUser.
func (m *MockClient) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

func (m *MockClient) GetStats(ctx context.Context, admin string) (panels.Stats, error) {
	m.mu.Lock()
	fail := m.failStats
	m.mu.Unlock()
	if fail {
		return panels.Stats{}, &panels.TransientAPIError{Op: "get_stats", Username: admin, Err: panels.ErrNetwork}
	}
	users, err := m.ListUsers(ctx, admin)
	if err != nil {
		return panels.Stats{}, err
	}
	return marzban.Summarize(users), nil
}

func (m *MockClient) ListUsers(ctx context.Context, admin string) ([]panels.RemoteUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList {
		return nil, &panels.TransientAPIError{Op: "list_users", Username: admin, Err: panels.ErrNetwork}
	}
	var out []panels.RemoteUser
	for _, u := range m.users {
		if u.Admin == admin {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *MockClient) RotatePassword(ctx context.Context, admin, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotateCalls++
	if m.failRotate {
		return &panels.TransientAPIError{Op: "rotate_password", Username: admin, StatusCode: 500, Err: panels.ErrNetwork}
	}
	m.passwords[admin] = password
	return nil
}

func (m *MockClient) SetUserStatus(ctx context.Context, username string, status panels.UserStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls++
	u, ok := m.users[username]
	if !ok {
		return &panels.TransientAPIError{Op: "set_user_status", Username: username, StatusCode: 404, Err: panels.ErrRejected}
	}
	if m.failUsers[username] {
		return &panels.TransientAPIError{Op: "set_user_status", Username: username, StatusCode: 500, Err: panels.ErrNetwork}
	}
	u.Status = status
	m.users[username] = u
	return nil
}

func (m *MockClient) DeleteUser(ctx context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; !ok {
		return &panels.TransientAPIError{Op: "delete_user", Username: username, StatusCode: 404, Err: panels.ErrRejected}
	}
	if m.failUsers[username] {
		return &panels.TransientAPIError{Op: "delete_user", Username: username, StatusCode: 500, Err: panels.ErrNetwork}
	}
	delete(m.users, username)
	m.deleted = append(m.deleted, username)
	return nil
}

// SeedUsers adds n users for admin with the given status, named
// "<admin>-user<i>".
func (m *MockClient) SeedUsers(admin string, n int, status panels.UserStatus) {
	for i := 0; i < n; i++ {
		m.AddUser(panels.RemoteUser{
			Username: fmt.Sprintf("%s-user%d", admin, i),
			Status:   status,
			Admin:    admin,
		})
	}
}

var _ panels.Client = (*MockClient)(nil)
