package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	v1 "postflow/pkg/api/v1"
)

// Failure codes shared by every adapter.
const (
	CodeUnsupported      = "unsupported_platform"
	CodeRateLimited      = "rate_limited"
	CodeUnauthorized     = "unauthorized"
	CodeUnavailable      = "platform_unavailable"
	CodeRejected         = "rejected"
	CodeNetwork          = "network_error"
	CodeTimeout          = "timeout"
	CodeInvalidContent   = "invalid_content"
	CodeBadResponse      = "unexpected_response"
	CodeMediaRequired    = "media_required"
	CodeMediaUnavailable = "media_unavailable"
)

// Result is the outcome of one publish call. On failure Code, Error and
// Classification are set; on success ExternalPostID is.
type Result struct {
	Success        bool
	ExternalPostID string
	Metrics        map[string]any
	Code           string
	Error          string
	Classification v1.Classification
}

func Succeeded(externalPostID string, metrics map[string]any) Result {
	return Result{Success: true, ExternalPostID: externalPostID, Metrics: metrics}
}

func Failure(code, msg string, c v1.Classification) Result {
	return Result{Code: code, Error: msg, Classification: c}
}

// Adapter publishes to one social platform. Publish must honour ctx and
// report every failure through Result instead of panicking.
type Adapter interface {
	Key() string
	Publish(ctx context.Context, content string, media []v1.MediaRef, credential string) Result
}

type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.Key().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Key()] = a
}

// Lookup never returns nil: unknown keys get an adapter that fails with
// unsupported_platform.
func (r *Registry) Lookup(key string) Adapter {
	r.mu.RLock()
	a, ok := r.adapters[key]
	r.mu.RUnlock()
	if !ok {
		return unsupported{key: key}
	}
	return a
}

func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type unsupported struct {
	key string
}

func (u unsupported) Key() string { return u.key }

func (u unsupported) Publish(context.Context, string, []v1.MediaRef, string) Result {
	return Failure(CodeUnsupported, fmt.Sprintf("platform %q is not supported", u.key), v1.Permanent)
}
