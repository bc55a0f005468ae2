package types

import "time"

// TokenUsage counts tokens consumed by a single provider call.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

func (u TokenUsage) Total() int {
	return u.Input + u.Output
}

// Response is the result of an orchestrated chat call. It is never mutated after
// it is returned; cache hits return a copy with Cached set.
type Response struct {
	Content    string     `json:"content"`
	Model      string     `json:"model"`
	Provider   string     `json:"provider"`
	Cached     bool       `json:"cached"`
	TokensUsed TokenUsage `json:"tokens_used"`
}

// UsageRecord is an append-only log row describing one completed call.
type UsageRecord struct {
	ID        string        `json:"id"`
	TaskType  TaskType      `json:"task_type"`
	UserID    string        `json:"user_id,omitempty"`
	Model     string        `json:"model"`
	Provider  string        `json:"provider"`
	Tokens    TokenUsage    `json:"tokens"`
	CostUSD   float64       `json:"cost_usd"`
	Latency   time.Duration `json:"latency"`
	Cached    bool          `json:"cached"`
	Fallback  bool          `json:"fallback"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
