package repository

import (
	"context"
	"errors"
	"testing"

	"postflow/internal/model"
	"postflow/pkg/constraints"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

func TestSecretRepository(t *testing.T) {
	repo := NewSecretRepository(newTestDB(t))
	ctx := context.Background()

	v, err := repo.OrganizationSecret(ctx, "org1", "twitter")
	if err != nil || v != "" {
		t.Fatalf("expected empty secret, got %q (%v)", v, err)
	}

	if err := repo.Upsert(ctx, "org1", "twitter", "tok-1", "u1"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Upsert(ctx, "org1", "twitter", "tok-2", "u2"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if err := repo.Upsert(ctx, "", "twitter", "global-tok", "ops"); err != nil {
		t.Fatalf("global upsert: %v", err)
	}

	if v, _ := repo.OrganizationSecret(ctx, "org1", "twitter"); v != "tok-2" {
		t.Errorf("expected replaced value, got %q", v)
	}
	if v, _ := repo.GlobalSecret(ctx, "twitter"); v != "global-tok" {
		t.Errorf("expected global value, got %q", v)
	}
	if v, _ := repo.OrganizationSecret(ctx, "org2", "twitter"); v != "" {
		t.Errorf("organizations must not see each other's secrets")
	}
}

func TestMembershipRepository_FindActive(t *testing.T) {
	db := newTestDB(t)
	repo := NewMembershipRepository(db)
	ctx := context.Background()

	db.Create(&model.OrganizationMembership{OrganizationID: "org1", UserID: "u1", Role: constraints.RoleOwner, Status: constraints.MembershipActive})
	db.Create(&model.OrganizationMembership{OrganizationID: "org1", UserID: "u2", Role: constraints.RoleMember, Status: constraints.MembershipRevoked})

	m, err := repo.FindActive(ctx, "u1", "org1")
	if err != nil || m == nil || m.Role != constraints.RoleOwner {
		t.Fatalf("expected active owner, got %+v (%v)", m, err)
	}
	if m, err := repo.FindActive(ctx, "u2", "org1"); err != nil || m != nil {
		t.Errorf("revoked membership must not be returned, got %+v (%v)", m, err)
	}
	if m, err := repo.FindActive(ctx, "u1", "org2"); err != nil || m != nil {
		t.Errorf("unexpected membership in another org: %+v (%v)", m, err)
	}
}

// MockKV partially implements clientv3.KV
type MockKV struct {
	clientv3.KV
	GetFn func(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	PutFn func(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
}

func (m *MockKV) Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, key, opts...)
	}
	return &clientv3.GetResponse{}, nil
}

func (m *MockKV) Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	if m.PutFn != nil {
		return m.PutFn(ctx, key, val, opts...)
	}
	return nil, errors.New("put not mocked")
}

func TestGlobalSecretRepository(t *testing.T) {
	var requested string
	kv := &MockKV{
		GetFn: func(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
			requested = key
			if key == "/postflow/secrets/global/twitter" {
				return &clientv3.GetResponse{Kvs: []*mvccpb.KeyValue{{Key: []byte(key), Value: []byte("etcd-tok")}}}, nil
			}
			return &clientv3.GetResponse{}, nil
		},
	}
	repo := NewGlobalSecretRepository(kv, "/postflow/secrets/global")

	v, err := repo.GlobalSecret(context.Background(), "twitter")
	if err != nil || v != "etcd-tok" {
		t.Fatalf("expected etcd-tok, got %q (%v)", v, err)
	}
	if requested != "/postflow/secrets/global/twitter" {
		t.Errorf("prefix not normalized, requested %q", requested)
	}

	v, err = repo.GlobalSecret(context.Background(), "youtube")
	if err != nil || v != "" {
		t.Errorf("missing key should be empty, got %q (%v)", v, err)
	}
}

func TestGlobalSecretRepository_Error(t *testing.T) {
	kv := &MockKV{
		GetFn: func(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
			return nil, errors.New("etcd down")
		},
	}
	repo := NewGlobalSecretRepository(kv, "/p/")
	if _, err := repo.GlobalSecret(context.Background(), "twitter"); err == nil {
		t.Error("expected error from etcd")
	}
	if err := repo.Health(context.Background()); err == nil {
		t.Error("expected health check to fail")
	}
}
