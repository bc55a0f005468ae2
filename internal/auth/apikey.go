package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/af-corp/grocer-orchestrator/internal/types"
)

const (
	alphanumeric = "abcdefghijklmnopqrstuvwxyz0123456789"
	keyScheme    = "grocer"
)

// GenerateKey creates a service key of the form grocer-{env}-{32 random alphanumeric chars}.
func GenerateKey(env string) (string, error) {
	random, err := randomString(32)
	if err != nil {
		return "", fmt.Errorf("generate random: %w", err)
	}
	return fmt.Sprintf("%s-%s-%s", keyScheme, env, random), nil
}

// HashKey returns the SHA-256 hex digest of a service key. Only hashes are stored.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)
}

// KeyPrefix returns the display-safe prefix grocer-{env}-{first 8 random chars}.
func KeyPrefix(key string) string {
	parts := strings.SplitN(key, "-", 3)
	if len(parts) != 3 || parts[0] != keyScheme {
		if len(key) > 16 {
			return key[:16]
		}
		return key
	}
	random := parts[2]
	if len(random) > 8 {
		random = random[:8]
	}
	return parts[0] + "-" + parts[1] + "-" + random
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b), nil
}

// KeyMetadata is the stored description of a service key.
type KeyMetadata struct {
	ID          string `json:"id"`
	ServiceName string `json:"service_name"`
	// Plan is the subscription tier the calling service acts for. The task
	// policy may restrict expensive tasks by plan.
	Plan string `json:"plan"`
	// AllowedTasks restricts the key to these task types. Nil allows all.
	AllowedTasks         []types.TaskType `json:"allowed_tasks"`
	RPMLimit             *int             `json:"rpm_limit,omitempty"`
	DailySpendLimitCents *int             `json:"daily_spend_limit_cents,omitempty"`
	ExpiresAt            time.Time        `json:"expires_at"`
}

// ParseDuration parses a duration string like "365d", "30d", "24h".
func ParseDuration(s string) (time.Duration, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty duration")
	}
	last := s[len(s)-1]
	if last == 'd' {
		var days int
		_, err := fmt.Sscanf(s, "%dd", &days)
		if err != nil {
			return 0, fmt.Errorf("parse days: %w", err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// ParseTaskList parses a comma-separated list of task types. Empty input
// yields nil, meaning every task is allowed.
func ParseTaskList(s string) ([]types.TaskType, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []types.TaskType
	for _, part := range strings.Split(s, ",") {
		task, ok := types.ParseTaskType(strings.TrimSpace(part))
		if !ok {
			return nil, fmt.Errorf("unknown task type %q", strings.TrimSpace(part))
		}
		out = append(out, task)
	}
	return out, nil
}
