package attribution

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Recognized campaign and click identifiers captured from landing URLs.
var attributionKeys = []string{
	"utm_source",
	"utm_medium",
	"utm_campaign",
	"utm_content",
	"utm_term",
	"fbclid",
	"gclid",
	"msclkid",
	"wbraid",
	"gbraid",
	"ad_id",
	"adset_id",
	"campaign_id",
}

// First-touch context fields stored once and never overwritten.
var firstTouchKeys = []string{"landing_url", "referrer", "user_agent"}

// Keys returns the recognized attribution parameter names.
func Keys() []string {
	out := make([]string, len(attributionKeys))
	copy(out, attributionKeys)
	return out
}

// Store captures and serves marketing attribution metadata per lead. All
// operations degrade to empty or ephemeral results when Redis is unavailable;
// they never return an error to the caller.
type Store struct {
	R      *redis.Client
	TTL    time.Duration
	Logger zerolog.Logger
}

func storageKey(leadID string) string {
	return "attr:" + leadID
}

// Capture merges attribution parameters from a landing URL into durable
// storage for the lead. A key present in the URL always refreshes storage; a
// stored key is never erased by its absence from a later URL. Landing URL,
// referrer and user agent are recorded with first-touch semantics. The
// returned map reflects storage after the merge.
func (s *Store) Capture(ctx context.Context, leadID string, params url.Values, landingURL, referrer, userAgent string) map[string]string {
	fromURL := map[string]string{}
	for _, key := range attributionKeys {
		if v := strings.TrimSpace(params.Get(key)); v != "" {
			fromURL[key] = v
		}
	}

	if s == nil || s.R == nil || leadID == "" {
		return fromURL
	}

	key := storageKey(leadID)
	pipe := s.R.TxPipeline()
	for k, v := range fromURL {
		pipe.HSet(ctx, key, k, v)
	}
	if v := stripFragment(landingURL); v != "" {
		pipe.HSetNX(ctx, key, "landing_url", v)
	}
	if v := strings.TrimSpace(referrer); v != "" {
		pipe.HSetNX(ctx, key, "referrer", v)
	}
	if v := strings.TrimSpace(userAgent); v != "" {
		pipe.HSetNX(ctx, key, "user_agent", v)
	}
	if s.TTL > 0 {
		pipe.Expire(ctx, key, s.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.Logger.Debug().Err(err).Str("lead_id", leadID).Msg("attribution storage unavailable")
		return fromURL
	}
	return s.Current(ctx, leadID)
}

// Current returns every recognized key stored for the lead. Keys absent from
// storage are omitted; storage failures yield an empty map.
func (s *Store) Current(ctx context.Context, leadID string) map[string]string {
	out := map[string]string{}
	if s == nil || s.R == nil || leadID == "" {
		return out
	}
	stored, err := s.R.HGetAll(ctx, storageKey(leadID)).Result()
	if err != nil {
		s.Logger.Debug().Err(err).Str("lead_id", leadID).Msg("attribution read failed")
		return out
	}
	for _, key := range attributionKeys {
		if v := stored[key]; v != "" {
			out[key] = v
		}
	}
	for _, key := range firstTouchKeys {
		if v := stored[key]; v != "" {
			out[key] = v
		}
	}
	return out
}

func stripFragment(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	return raw
}
