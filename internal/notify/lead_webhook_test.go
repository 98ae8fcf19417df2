package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowio-app/backend-demo/internal/notify"
)

func TestLeadPayloadFlattensAttribution(t *testing.T) {
	payload := notify.LeadPayload{
		Action:    "demoLead",
		Timestamp: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		LeadID:    "lead-123",
		Name:      "Sam",
		Trade:     "Electrician",
		Phone:     "0400000000",
		Email:     "sam@example.com",
		Items:     []notify.LeadItem{{SKU: "ELEC-005", Qty: 2}},
		Total:     550,
		Attribution: map[string]string{
			"utm_source": "facebook",
			"gclid":      "abc123",
			"total":      "should-not-shadow",
		},
	}

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(raw, &flat))
	require.Equal(t, "demoLead", flat["action"])
	require.Equal(t, "2026-03-14T09:26:53Z", flat["timestamp"])
	require.Equal(t, "facebook", flat["utm_source"])
	require.Equal(t, "abc123", flat["gclid"])
	require.Equal(t, float64(550), flat["total"])
	_, nested := flat["attribution"]
	require.False(t, nested, "attribution must be flattened, not nested")

	var back notify.LeadPayload
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, payload.LeadID, back.LeadID)
	require.Equal(t, payload.Items, back.Items)
	require.Equal(t, payload.Timestamp, back.Timestamp)
	require.Equal(t, map[string]string{"utm_source": "facebook", "gclid": "abc123"}, back.Attribution)
}

func TestLeadPayloadMarshalEmptyItems(t *testing.T) {
	raw, err := json.Marshal(notify.LeadPayload{Action: "demoLead"})
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(raw, &flat))
	require.Equal(t, []any{}, flat["items"])
}

func TestSenderPostsPayload(t *testing.T) {
	var got notify.LeadPayload
	var contentType, userAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		userAgent = r.Header.Get("User-Agent")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := notify.Sender{URL: srv.URL, Client: srv.Client()}
	status, err := sender.Send(context.Background(), notify.LeadPayload{
		Action: "demoLead",
		LeadID: "lead-123",
		Name:   "Sam",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "application/json", contentType)
	require.Equal(t, "flowio-demo-webhooks/1.0", userAgent)
	require.Equal(t, "lead-123", got.LeadID)
}

func TestSenderRejectsInvalidURL(t *testing.T) {
	cases := map[string]string{
		"plain http to remote host": "http://example.com/hook",
		"missing host":              "https://",
		"bad scheme":                "ftp://example.com/hook",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			sender := notify.Sender{URL: target}
			_, err := sender.Send(context.Background(), notify.LeadPayload{})
			require.Error(t, err)
		})
	}
}

func TestSenderAllowsLocalhostHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := notify.Sender{URL: srv.URL, Client: srv.Client()}
	status, err := sender.Send(context.Background(), notify.LeadPayload{})
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, status)
}
