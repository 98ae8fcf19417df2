package attribution_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/flowio-app/backend-demo/internal/attribution"
)

func newTestStore(t *testing.T) (*attribution.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &attribution.Store{R: client}, mr
}

func TestCaptureStoresRecognizedURLKeys(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	params := url.Values{}
	params.Set("utm_source", "facebook")
	params.Set("utm_campaign", "launch")
	params.Set("gclid", "abc123")
	params.Set("unrelated", "ignored")

	got := store.Capture(ctx, "lead-1", params, "https://example.com/?utm_source=facebook", "https://google.com", "agent/1.0")
	require.Equal(t, "facebook", got["utm_source"])
	require.Equal(t, "launch", got["utm_campaign"])
	require.Equal(t, "abc123", got["gclid"])
	require.NotContains(t, got, "unrelated")
	require.NotContains(t, got, "utm_medium")

	require.Equal(t, "https://example.com/?utm_source=facebook", got["landing_url"])
	require.Equal(t, "https://google.com", got["referrer"])
	require.Equal(t, "agent/1.0", got["user_agent"])
}

func TestCaptureEnrichesWithoutErasing(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first := url.Values{}
	first.Set("utm_source", "facebook")
	first.Set("utm_medium", "cpc")
	store.Capture(ctx, "lead-1", first, "https://example.com/a", "", "")

	// Second visit carries a different subset: present keys refresh, absent
	// keys survive untouched.
	second := url.Values{}
	second.Set("utm_source", "instagram")
	got := store.Capture(ctx, "lead-1", second, "https://example.com/b", "", "")

	require.Equal(t, "instagram", got["utm_source"])
	require.Equal(t, "cpc", got["utm_medium"])
}

func TestFirstTouchFieldsAreNeverOverwritten(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Capture(ctx, "lead-1", url.Values{}, "https://example.com/landing#hero", "https://google.com", "agent/1.0")
	got := store.Capture(ctx, "lead-1", url.Values{}, "https://example.com/other", "https://bing.com", "agent/2.0")

	require.Equal(t, "https://example.com/landing", got["landing_url"])
	require.Equal(t, "https://google.com", got["referrer"])
	require.Equal(t, "agent/1.0", got["user_agent"])
}

func TestCurrentReturnsStoredValuesWithoutURLParams(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	params := url.Values{}
	params.Set("fbclid", "xyz")
	store.Capture(ctx, "lead-1", params, "https://example.com", "", "")

	got := store.Current(ctx, "lead-1")
	require.Equal(t, "xyz", got["fbclid"])

	require.Empty(t, store.Current(ctx, "lead-unknown"))
}

func TestStoreDegradesWhenRedisUnavailable(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()
	ctx := context.Background()

	params := url.Values{}
	params.Set("utm_source", "facebook")

	// Capture still reports the URL-derived values for this session.
	got := store.Capture(ctx, "lead-1", params, "https://example.com", "", "")
	require.Equal(t, "facebook", got["utm_source"])
	require.Empty(t, store.Current(ctx, "lead-1"))

	// Nil client behaves the same way.
	var nilStore attribution.Store
	require.Equal(t, map[string]string{"utm_source": "facebook"}, nilStore.Capture(ctx, "lead-1", params, "", "", ""))
	require.Empty(t, nilStore.Current(ctx, "lead-1"))
}

func TestLeadIdentityMiddlewareIsIdempotent(t *testing.T) {
	var seen []string
	handler := attribution.LeadIdentity{}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := attribution.LeadID(r.Context())
		require.True(t, ok)
		seen = append(seen, id)
	}))

	// First request mints an identifier and sets the cookie.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Len(t, seen, 1)
	require.NotEmpty(t, seen[0])

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	require.Equal(t, attribution.LeadCookieName, cookies[0].Name)
	require.Equal(t, seen[0], cookies[0].Value)

	// Subsequent requests reuse the cookie value and do not re-mint.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	require.Equal(t, seen[0], seen[1])
	require.Empty(t, rec2.Result().Cookies())
}
