package repository

import (
	"context"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// GlobalSecretRepository reads shared platform credentials from etcd, one
// key per platform under prefix (e.g. /postflow/secrets/global/twitter).
type GlobalSecretRepository struct {
	client clientv3.KV
	prefix string
}

func NewGlobalSecretRepository(client clientv3.KV, prefix string) *GlobalSecretRepository {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &GlobalSecretRepository{
		client: client,
		prefix: prefix,
	}
}

func (r *GlobalSecretRepository) key(platform string) string {
	return r.prefix + platform
}

// GlobalSecret returns "" when the key is absent.
func (r *GlobalSecretRepository) GlobalSecret(ctx context.Context, platform string) (string, error) {
	resp, err := r.client.Get(ctx, r.key(platform))
	if err != nil {
		return "", err
	}
	if len(resp.Kvs) == 0 {
		return "", nil
	}
	return string(resp.Kvs[0].Value), nil
}

func (r *GlobalSecretRepository) Health(ctx context.Context) error {
	_, err := r.client.Get(ctx, "health_check")
	return err
}
