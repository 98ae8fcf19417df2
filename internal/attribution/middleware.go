package attribution

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LeadCookieName stores the anonymous lead identifier on the visitor's browser.
const LeadCookieName = "flowio_lead_id"

// DefaultLeadCookieTTL keeps the identifier around long enough to correlate
// repeat visits.
const DefaultLeadCookieTTL = 2 * 365 * 24 * time.Hour

type leadIDKey struct{}

// WithLeadID stores a lead identifier on the context.
func WithLeadID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, leadIDKey{}, id)
}

// LeadID extracts the lead identifier from the context if present.
func LeadID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(leadIDKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// LeadIdentity mints and replays the durable anonymous lead identifier. An
// existing cookie is reused verbatim; a missing one is minted once and set
// with a long expiry. The identifier is never regenerated once present.
type LeadIdentity struct {
	CookieTTL    time.Duration
	CookieSecure bool
}

// Middleware ensures every request carries a lead identifier in its context
// and on the response cookie.
func (l LeadIdentity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(LeadCookieName); err == nil {
			id = strings.TrimSpace(c.Value)
		}
		if id == "" {
			id = uuid.NewString()
			ttl := l.CookieTTL
			if ttl <= 0 {
				ttl = DefaultLeadCookieTTL
			}
			http.SetCookie(w, &http.Cookie{
				Name:     LeadCookieName,
				Value:    id,
				Path:     "/",
				MaxAge:   int(ttl / time.Second),
				Secure:   l.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(WithLeadID(r.Context(), id)))
	})
}
