package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"postflow/pkg/logger"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Credential sources, in precedence order.
const (
	SourceOrganization = "organization"
	SourceGlobal       = "global"
	SourceEnvironment  = "environment"
)

type OrganizationSecretSource interface {
	OrganizationSecret(ctx context.Context, organizationID, platform string) (string, error)
}

type GlobalSecretSource interface {
	GlobalSecret(ctx context.Context, platform string) (string, error)
}

type ResolveOptions struct {
	AllowGlobalFallback bool
	AllowEnvFallback    bool
}

// Resolution is the outcome of a credential lookup. Value is never printed:
// String and MarshalLogObject redact it.
type Resolution struct {
	Success bool
	Value   string
	Source  string
	Reason  string
}

func (r Resolution) String() string {
	if r.Success {
		return fmt.Sprintf("resolved from %s (value redacted)", r.Source)
	}
	return "unresolved: " + r.Reason
}

func (r Resolution) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddBool("success", r.Success)
	enc.AddString("source", r.Source)
	enc.AddString("reason", r.Reason)
	enc.AddBool("has_value", r.Value != "")
	return nil
}

// EnvKey maps a platform key to its process-level fallback variable,
// e.g. "twitter" -> TWITTER_ACCESS_TOKEN.
func EnvKey(platform string) string {
	mapped := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, platform)
	return mapped + "_ACCESS_TOKEN"
}

type SecretResolver struct {
	org       OrganizationSecretSource
	global    GlobalSecretSource
	lookupEnv func(string) (string, bool)
	timeout   time.Duration
}

// NewSecretResolver builds the organization -> global -> environment chain.
// global may be nil, in which case global fallback never yields a value.
func NewSecretResolver(org OrganizationSecretSource, global GlobalSecretSource, timeout time.Duration) *SecretResolver {
	return &SecretResolver{
		org:       org,
		global:    global,
		lookupEnv: os.LookupEnv,
		timeout:   timeout,
	}
}

// WithEnvLookup replaces os.LookupEnv, mainly for tests.
func (r *SecretResolver) WithEnvLookup(fn func(string) (string, bool)) *SecretResolver {
	r.lookupEnv = fn
	return r
}

// Resolve returns the first non-empty credential for platform. It never
// panics and never returns an error; failures are reported in Reason. A
// store error stops the chain rather than falling through to a broader
// credential.
func (r *SecretResolver) Resolve(ctx context.Context, organizationID, platform string, opts ResolveOptions) (res Resolution) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("secret resolver panic recovered",
				zap.String("organization_id", organizationID),
				zap.String("platform", platform),
				zap.Any("panic", p),
			)
			res = Resolution{Reason: "secret resolver failed"}
		}
	}()

	if platform == "" {
		return Resolution{Reason: "platform key is required"}
	}

	if r.org != nil && organizationID != "" {
		v, err := r.lookup(ctx, func(ctx context.Context) (string, error) {
			return r.org.OrganizationSecret(ctx, organizationID, platform)
		})
		if err != nil {
			logger.Warn("organization secret lookup failed",
				zap.String("organization_id", organizationID),
				zap.String("platform", platform),
				zap.Error(err),
			)
			return Resolution{Reason: "secret_store_unavailable: organization secret lookup failed"}
		}
		if strings.TrimSpace(v) != "" {
			return Resolution{Success: true, Value: v, Source: SourceOrganization}
		}
	}

	if opts.AllowGlobalFallback && r.global != nil {
		v, err := r.lookup(ctx, func(ctx context.Context) (string, error) {
			return r.global.GlobalSecret(ctx, platform)
		})
		if err != nil {
			logger.Warn("global secret lookup failed", zap.String("platform", platform), zap.Error(err))
			return Resolution{Reason: "secret_store_unavailable: global secret lookup failed"}
		}
		if strings.TrimSpace(v) != "" {
			return Resolution{Success: true, Value: v, Source: SourceGlobal}
		}
	}

	if opts.AllowEnvFallback && r.lookupEnv != nil {
		if v, ok := r.lookupEnv(EnvKey(platform)); ok && strings.TrimSpace(v) != "" {
			return Resolution{Success: true, Value: v, Source: SourceEnvironment}
		}
	}

	return Resolution{Reason: fmt.Sprintf("no credential configured for platform %s", platform)}
}

func (r *SecretResolver) lookup(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return fn(ctx)
}
