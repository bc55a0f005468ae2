package auth

import (
	"context"
	"slices"

	"github.com/af-corp/grocer-orchestrator/internal/types"
)

type contextKey string

const authContextKey contextKey = "grocer_auth"

// AuthInfo is the authenticated caller derived from a service key.
type AuthInfo struct {
	KeyID                string
	ServiceName          string
	Plan                 string
	AllowedTasks         []types.TaskType
	RPMLimit             *int
	DailySpendLimitCents *int
}

// AllowsTask reports whether the key may call task. A nil AllowedTasks allows
// every task; an empty non-nil list allows none.
func (a *AuthInfo) AllowsTask(task types.TaskType) bool {
	return a.AllowedTasks == nil || slices.Contains(a.AllowedTasks, task)
}

func ContextWithAuth(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authContextKey, info)
}

func AuthFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authContextKey).(*AuthInfo)
	return info, ok
}
