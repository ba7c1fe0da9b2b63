package service

import "context"

type contextKey string

const callerKey contextKey = "caller"

// CallerInfo is the identity the JWT middleware extracted from the request.
// Organization access is never derived from it, only from memberships.
type CallerInfo struct {
	UserID string
	Name   string
}

func WithCaller(ctx context.Context, c *CallerInfo) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// GetCallerInfo returns nil when the request is unauthenticated.
func GetCallerInfo(ctx context.Context) *CallerInfo {
	val, ok := ctx.Value(callerKey).(*CallerInfo)
	if !ok {
		return nil
	}
	return val
}

// GetCallerID returns "" for an unauthenticated context.
func GetCallerID(ctx context.Context) string {
	c := GetCallerInfo(ctx)
	if c == nil {
		return ""
	}
	return c.UserID
}
