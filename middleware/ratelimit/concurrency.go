package ratelimit

import (
	"net/http"
	"time"

	"tenant-gateway/middleware/ratelimit/application"
	"tenant-gateway/middleware/ratelimit/infra"
	"tenant-gateway/middleware/respond"

	"go.uber.org/zap"
)

// ConcurrencyOptions configura o limite global de requests em voo.
// É aplicado antes da resolução de tenant (protege o processo, não o tenant).
type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	Logger         *zap.Logger
}

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				opts.Logger.Warn("no concurrency slot available",
					zap.Int("max", opts.Max),
					zap.String("path", r.URL.Path),
					zap.String("request_id", r.Header.Get("X-Request-ID")),
				)
				respond.Error(w, opts.RejectStatus, respond.MsgServerBusy)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
