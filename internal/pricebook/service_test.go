package pricebook_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/flowio-app/backend-demo/internal/pricebook"
	"github.com/flowio-app/backend-demo/internal/quote"
)

func TestItemsServesRemotePricebook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"items":[{"sku":"ELEC-010","name":"Switchboard check","rate":199.5}]}`))
	}))
	defer srv.Close()

	svc := &pricebook.Service{URL: srv.URL, Client: srv.Client()}
	items := svc.Items(context.Background())
	require.Len(t, items, 1)
	require.Equal(t, "ELEC-010", items[0].SKU)
	require.Equal(t, quote.Money(19950), items[0].Rate)
}

func TestItemsFallsBackOnFailure(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"malformed body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ok":tru`))
		},
		"not ok": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ok":false,"items":[]}`))
		},
		"empty items": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ok":true,"items":[]}`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			svc := &pricebook.Service{URL: srv.URL, Client: srv.Client()}
			require.Equal(t, pricebook.FallbackItems(), svc.Items(context.Background()))
		})
	}
}

func TestItemsFallsBackWhenEndpointUnreachable(t *testing.T) {
	svc := &pricebook.Service{
		URL:    "http://127.0.0.1:1",
		Client: &http.Client{Timeout: 200 * time.Millisecond},
	}
	require.Equal(t, pricebook.FallbackItems(), svc.Items(context.Background()))
}

func TestItemsWithoutRemoteConfigured(t *testing.T) {
	var svc pricebook.Service
	require.Equal(t, pricebook.FallbackItems(), svc.Items(context.Background()))
}

func TestItemsUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"ok":true,"items":[{"sku":"GEN-001","name":"Callout","rate":50}]}`))
	}))
	defer srv.Close()

	svc := &pricebook.Service{
		URL:    srv.URL,
		Client: srv.Client(),
		Cache:  pricebook.NewCache(client, time.Minute),
	}
	first := svc.Items(context.Background())
	second := svc.Items(context.Background())
	require.Equal(t, first, second)
	require.Equal(t, 1, calls)
}

func TestFind(t *testing.T) {
	var svc pricebook.Service
	it, ok := svc.Find(context.Background(), "GEN-002")
	require.True(t, ok)
	require.Equal(t, "Labour", it.Name)

	_, ok = svc.Find(context.Background(), "NOPE")
	require.False(t, ok)
}
