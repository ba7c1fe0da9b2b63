package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func envOf(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestSecretResolver_Precedence(t *testing.T) {
	all := ResolveOptions{AllowGlobalFallback: true, AllowEnvFallback: true}

	tests := []struct {
		name       string
		org        map[string]string
		global     map[string]string
		env        map[string]string
		opts       ResolveOptions
		wantOK     bool
		wantValue  string
		wantSource string
	}{
		{
			name:       "organization wins",
			org:        map[string]string{"org1/twitter": "org-tok"},
			global:     map[string]string{"twitter": "global-tok"},
			env:        map[string]string{"TWITTER_ACCESS_TOKEN": "env-tok"},
			opts:       all,
			wantOK:     true,
			wantValue:  "org-tok",
			wantSource: SourceOrganization,
		},
		{
			name:       "global when organization empty",
			global:     map[string]string{"twitter": "global-tok"},
			env:        map[string]string{"TWITTER_ACCESS_TOKEN": "env-tok"},
			opts:       all,
			wantOK:     true,
			wantValue:  "global-tok",
			wantSource: SourceGlobal,
		},
		{
			name:       "global skipped when not allowed",
			global:     map[string]string{"twitter": "global-tok"},
			env:        map[string]string{"TWITTER_ACCESS_TOKEN": "env-tok"},
			opts:       ResolveOptions{AllowEnvFallback: true},
			wantOK:     true,
			wantValue:  "env-tok",
			wantSource: SourceEnvironment,
		},
		{
			name:       "whitespace does not count",
			org:        map[string]string{"org1/twitter": "  "},
			env:        map[string]string{"TWITTER_ACCESS_TOKEN": "env-tok"},
			opts:       all,
			wantOK:     true,
			wantValue:  "env-tok",
			wantSource: SourceEnvironment,
		},
		{
			name: "env not allowed",
			env:  map[string]string{"TWITTER_ACCESS_TOKEN": "env-tok"},
			opts: ResolveOptions{AllowGlobalFallback: true},
		},
		{
			name: "nothing configured",
			opts: all,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &MockSecrets{Org: tt.org, Global: tt.global}
			r := NewSecretResolver(src, src, 0).WithEnvLookup(envOf(tt.env))

			res := r.Resolve(context.Background(), "org1", "twitter", tt.opts)
			if res.Success != tt.wantOK {
				t.Fatalf("success = %v, want %v (reason %q)", res.Success, tt.wantOK, res.Reason)
			}
			if res.Value != tt.wantValue || res.Source != tt.wantSource {
				t.Errorf("got %s from %q, want %s from %q", res.Value, res.Source, tt.wantValue, tt.wantSource)
			}
			if !res.Success && res.Reason == "" {
				t.Error("failure must carry a reason")
			}
		})
	}
}

func TestSecretResolver_StopsAtFirstHit(t *testing.T) {
	src := &MockSecrets{Org: map[string]string{"org1/linkedin": "org-tok"}, Global: map[string]string{"linkedin": "g"}}
	r := NewSecretResolver(src, src, 0).WithEnvLookup(envOf(nil))

	r.Resolve(context.Background(), "org1", "linkedin", ResolveOptions{AllowGlobalFallback: true, AllowEnvFallback: true})
	if len(src.Calls) != 1 || src.Calls[0] != "org:linkedin" {
		t.Errorf("later sources must not be consulted, calls: %v", src.Calls)
	}
}

func TestSecretResolver_StoreError(t *testing.T) {
	src := &MockSecrets{
		OrgErr: errors.New("connection refused"),
		Global: map[string]string{"twitter": "global-tok"},
	}
	r := NewSecretResolver(src, src, 0).WithEnvLookup(envOf(map[string]string{"TWITTER_ACCESS_TOKEN": "env-tok"}))

	res := r.Resolve(context.Background(), "org1", "twitter", ResolveOptions{AllowGlobalFallback: true, AllowEnvFallback: true})
	if res.Success {
		t.Fatalf("a store error must not fall through, got source %q", res.Source)
	}
	if !strings.Contains(res.Reason, "secret_store_unavailable") {
		t.Errorf("unexpected reason %q", res.Reason)
	}
	for _, c := range src.Calls {
		if strings.HasPrefix(c, "global:") {
			t.Errorf("global source consulted after store error")
		}
	}
}

type panickingSource struct{}

func (panickingSource) OrganizationSecret(context.Context, string, string) (string, error) {
	panic("boom")
}

func TestSecretResolver_NeverPanics(t *testing.T) {
	r := NewSecretResolver(panickingSource{}, nil, 0)
	res := r.Resolve(context.Background(), "org1", "twitter", ResolveOptions{})
	if res.Success || res.Reason == "" {
		t.Errorf("expected structured failure, got %+v", res)
	}
}

func TestResolution_Redaction(t *testing.T) {
	const secret = "super-secret-token"
	res := Resolution{Success: true, Value: secret, Source: SourceOrganization}

	if s := fmt.Sprint(res); strings.Contains(s, secret) {
		t.Errorf("String leaks the value: %s", s)
	}

	enc := zapcore.NewMapObjectEncoder()
	if err := res.MarshalLogObject(enc); err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for k, v := range enc.Fields {
		if fmt.Sprint(v) == secret {
			t.Errorf("log field %s leaks the value", k)
		}
	}

	// no source may echo a value into Reason
	src := &MockSecrets{OrgErr: errors.New("bad")}
	failed := NewSecretResolver(src, src, 0).WithEnvLookup(envOf(nil)).
		Resolve(context.Background(), "org1", "twitter", ResolveOptions{})
	if strings.Contains(failed.Reason, secret) {
		t.Error("reason leaks the value")
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"twitter":  "TWITTER_ACCESS_TOKEN",
		"linkedin": "LINKEDIN_ACCESS_TOKEN",
		"you-tube": "YOU_TUBE_ACCESS_TOKEN",
		"x.com v2": "X_COM_V2_ACCESS_TOKEN",
	}
	for in, want := range tests {
		if got := EnvKey(in); got != want {
			t.Errorf("EnvKey(%q) = %s, want %s", in, got, want)
		}
	}
}
