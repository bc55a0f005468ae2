package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/af-corp/grocer-orchestrator/internal/auth"
	"github.com/af-corp/grocer-orchestrator/internal/config"
	"github.com/af-corp/grocer-orchestrator/internal/httputil"
	"github.com/af-corp/grocer-orchestrator/internal/telemetry"
)

const (
	// HeaderUserID carries the end user a service is calling on behalf of.
	HeaderUserID = "X-Grocer-User-ID"

	headerRateLimitRequests          = "X-RateLimit-Limit-Requests"
	headerRateLimitRemainingRequests = "X-RateLimit-Remaining-Requests"
	headerRateLimitReset             = "X-RateLimit-Reset-Requests"
	headerRetryAfter                 = "Retry-After"
)

// Subject returns the identity limits are counted against: the end user when
// the caller names one, otherwise the service key itself.
func Subject(r *http.Request, info *auth.AuthInfo) string {
	if u := r.Header.Get(HeaderUserID); u != "" {
		return u
	}
	return "key:" + info.KeyID
}

// Middleware returns chi middleware that enforces per-user request rate and
// daily spend limits. Key-level limits override the configured defaults.
func Middleware(limiter *Limiter, budget *BudgetTracker, cfg func() *config.Config, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			authInfo, ok := auth.AuthFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			limits := cfg().RateLimit
			subject := Subject(r, authInfo)

			rpm := limits.RequestsPerMinute
			if authInfo.RPMLimit != nil {
				rpm = *authInfo.RPMLimit
			}

			if rpm > 0 {
				rpmKey := fmt.Sprintf("rpm:%s:%s", authInfo.ServiceName, subject)
				result, _ := limiter.Check(r.Context(), rpmKey, int64(rpm), time.Minute)

				w.Header().Set(headerRateLimitRequests, strconv.Itoa(rpm))
				w.Header().Set(headerRateLimitRemainingRequests, strconv.FormatInt(result.Remaining, 10))
				w.Header().Set(headerRateLimitReset, result.ResetAt.Format(time.RFC3339))

				if !result.Allowed {
					slog.Warn("rate limit exceeded",
						"request_id", reqID,
						"key_id", authInfo.KeyID,
						"service", authInfo.ServiceName,
						"subject", subject,
						"dimension", "rpm",
						"limit", rpm,
					)
					metrics.RecordRateLimitHit("rpm", authInfo.ServiceName)
					w.Header().Set(headerRetryAfter, strconv.Itoa(int(result.RetryAfter.Seconds())))
					httputil.WriteRateLimitError(w, reqID,
						fmt.Sprintf("Rate limit exceeded: %d requests per minute. Retry after %s", rpm, result.ResetAt.Format(time.RFC3339)))
					return
				}
			}

			limitCents := limits.DailySpendLimitCents
			if authInfo.DailySpendLimitCents != nil {
				limitCents = int64(*authInfo.DailySpendLimitCents)
			}

			if limitCents > 0 {
				budgetResult, _ := budget.CheckDailySpend(r.Context(), subject, limitCents)
				if !budgetResult.Allowed {
					slog.Warn("daily budget exceeded",
						"request_id", reqID,
						"key_id", authInfo.KeyID,
						"subject", subject,
						"spent_cents", budgetResult.SpentCents,
						"limit_cents", budgetResult.LimitCents,
					)
					metrics.RecordRateLimitHit("budget", authInfo.ServiceName)
					httputil.WriteBudgetExceededError(w, reqID,
						fmt.Sprintf("Daily budget exceeded: spent %d of %d cents", budgetResult.SpentCents, budgetResult.LimitCents))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
