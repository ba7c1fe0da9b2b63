package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"postflow/internal/config"
	"postflow/internal/database"
	"postflow/internal/model"
	"postflow/internal/platform"
	"postflow/internal/repository"
	v1 "postflow/pkg/api/v1"
	"postflow/pkg/constraints"
	"postflow/pkg/logger"

	"gorm.io/gorm"
)

func init() {
	logger.InitLogger("test")
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// MockMemberships implements repository.MembershipInterface over a map keyed
// by "user/org".
type MockMemberships struct {
	Members map[string]*model.OrganizationMembership
	Err     error
}

func (m *MockMemberships) FindActive(ctx context.Context, userID, organizationID string) (*model.OrganizationMembership, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	mem, ok := m.Members[userID+"/"+organizationID]
	if !ok || mem.Status != constraints.MembershipActive {
		return nil, nil
	}
	return mem, nil
}

func members(entries ...string) *MockMemberships {
	m := &MockMemberships{Members: map[string]*model.OrganizationMembership{}}
	// entries are "user/org/role"
	for _, e := range entries {
		parts := strings.Split(e, "/")
		m.Members[parts[0]+"/"+parts[1]] = &model.OrganizationMembership{
			UserID:         parts[0],
			OrganizationID: parts[1],
			Role:           parts[2],
			Status:         constraints.MembershipActive,
		}
	}
	return m
}

// MockSecrets serves both organization and global secrets from maps.
type MockSecrets struct {
	mu        sync.Mutex
	Org       map[string]string // "org/platform"
	Global    map[string]string
	OrgErr    error
	GlobalErr error
	Calls     []string
}

func (m *MockSecrets) OrganizationSecret(ctx context.Context, organizationID, platform string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "org:"+platform)
	if m.OrgErr != nil {
		return "", m.OrgErr
	}
	return m.Org[organizationID+"/"+platform], nil
}

func (m *MockSecrets) GlobalSecret(ctx context.Context, platform string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "global:"+platform)
	if m.GlobalErr != nil {
		return "", m.GlobalErr
	}
	return m.Global[platform], nil
}

func (m *MockSecrets) Upsert(ctx context.Context, organizationID, platform, value, updatedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Org == nil {
		m.Org = map[string]string{}
	}
	m.Org[organizationID+"/"+platform] = value
	return nil
}

// MockAdapter is a scripted platform adapter.
type MockAdapter struct {
	key       string
	mu        sync.Mutex
	calls     int
	creds     []string
	PublishFn func(ctx context.Context, content string, media []v1.MediaRef, credential string) platform.Result
}

func (m *MockAdapter) Key() string { return m.key }

func (m *MockAdapter) Publish(ctx context.Context, content string, media []v1.MediaRef, credential string) platform.Result {
	m.mu.Lock()
	m.calls++
	m.creds = append(m.creds, credential)
	m.mu.Unlock()
	if m.PublishFn != nil {
		return m.PublishFn(ctx, content, media, credential)
	}
	return platform.Succeeded(m.key+"-post", nil)
}

func (m *MockAdapter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var errStore = errors.New("store unavailable")

// failingAttempts wraps a real job store and fails every AppendAttempt.
type failingAttempts struct {
	repository.JobInterface
}

func (f *failingAttempts) AppendAttempt(ctx context.Context, a *model.PublicationAttempt) error {
	return errStore
}
