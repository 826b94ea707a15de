package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/MarketGo/pkg/logger"
)

// RequestLogger stores a logger enriched with correlation, customer,
// checkout and trace ids in the request context. Mount it after
// RequestLogging and Tracing so those ids are already present.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := r.Header.Get(HeaderCustomerID); id != "" {
				ctx = logger.WithCustomerID(ctx, id)
			}
			if id := r.Header.Get(HeaderCheckoutID); id != "" {
				ctx = logger.WithCheckoutID(ctx, id)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
