package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"assent/internal/domain"
)

type contextKeyRequestMeta struct{}

// Metadata captures the client IP, raw User-Agent, and a parsed device
// summary for every request. Capture metadata is recorded on consent
// records as evidence of how the consent was collected.
func Metadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := domain.RequestMeta{
			ClientIP:   clientIP(r),
			UserAgent:  r.Header.Get("User-Agent"),
			DeviceInfo: deviceInfo(r.Header.Get("User-Agent")),
		}
		ctx := context.WithValue(r.Context(), contextKeyRequestMeta{}, meta)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestMeta retrieves capture metadata from the context.
func GetRequestMeta(ctx context.Context) domain.RequestMeta {
	if meta, ok := ctx.Value(contextKeyRequestMeta{}).(domain.RequestMeta); ok {
		return meta
	}
	return domain.RequestMeta{}
}

// WithRequestMeta injects capture metadata into a context. Useful for
// service tests that skip the HTTP chain.
func WithRequestMeta(ctx context.Context, meta domain.RequestMeta) context.Context {
	return context.WithValue(ctx, contextKeyRequestMeta{}, meta)
}

func deviceInfo(rawUA string) string {
	if rawUA == "" {
		return ""
	}
	ua := useragent.New(rawUA)
	name, version := ua.Browser()
	parts := make([]string, 0, 3)
	if ua.Platform() != "" {
		parts = append(parts, ua.Platform())
	}
	if ua.OS() != "" {
		parts = append(parts, ua.OS())
	}
	if name != "" {
		parts = append(parts, fmt.Sprintf("%s %s", name, version))
	}
	if ua.Mobile() {
		parts = append(parts, "mobile")
	}
	return strings.Join(parts, "; ")
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// first hop is the original client
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}
	return "unknown"
}
