package middleware

import (
	"log/slog"
	"net/http"

	"github.com/a-essam23/go-classroom/pkg/config"
)

// Realtime links are anonymous until their handshake, so they are counted per address.
type ConnectionCounter func(ipAddr string) int
type ConnectionCycler func(ipAddr string)

func NewConnectionLimiter(
	logger *slog.Logger,
	counter ConnectionCounter,
	cycler ConnectionCycler,
	config config.ConnectionLimitConfig,
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.MaxPerIP <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				logger.Error("Connection limiter could not find request metadata in context. Check middleware order.")
				WriteError(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}

			count := counter(reqMeta.IP)
			if count < config.MaxPerIP {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("Connection limit reached", slog.String("ip", reqMeta.IP), slog.Int("count", count))
			switch config.Mode {
			case "reject":
				WriteError(w, http.StatusTooManyRequests, "Too many active connections")
				return
			case "cycle":
				cycler(reqMeta.IP)
				next.ServeHTTP(w, r)
			default:
				logger.Error("Invalid connection limit mode configured", slog.String("mode", config.Mode))
				WriteError(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}
		})
	}
}
