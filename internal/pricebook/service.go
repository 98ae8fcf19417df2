package pricebook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/flowio-app/backend-demo/internal/obs"
	"github.com/flowio-app/backend-demo/internal/quote"
)

// Item is one selectable catalog entry. Rate is stored in minor units.
type Item struct {
	SKU  string      `json:"sku"`
	Name string      `json:"name"`
	Rate quote.Money `json:"rate"`
}

// FallbackItems is the fixed local catalog used whenever the remote pricebook
// cannot be fetched.
func FallbackItems() []Item {
	return []Item{
		{SKU: "ELEC-002", Name: "Power point add", Rate: 15000},
		{SKU: "ELEC-003", Name: "LED downlight supply+fit", Rate: 8500},
		{SKU: "ELEC-005", Name: "Install Ceiling Fan", Rate: 25000},
		{SKU: "GEN-002", Name: "Labour", Rate: 9500},
	}
}

// Service resolves the pricing catalog, preferring the remote pricebook and
// silently falling back to the fixed local catalog on any failure.
type Service struct {
	URL    string
	Client *http.Client
	Cache  *Cache
	Logger zerolog.Logger
}

const cacheKey = "pricebook:items"

type remoteResponse struct {
	OK    bool `json:"ok"`
	Items []struct {
		SKU  string  `json:"sku"`
		Name string  `json:"name"`
		Rate float64 `json:"rate"`
	} `json:"items"`
}

// Items returns the current catalog. It never fails: remote errors are logged
// and the fallback catalog is served instead.
func (s *Service) Items(ctx context.Context) []Item {
	if s == nil || strings.TrimSpace(s.URL) == "" {
		return FallbackItems()
	}

	var cached []Item
	if ok, err := s.Cache.GetJSON(ctx, cacheKey, &cached); err == nil && ok && len(cached) > 0 {
		return cached
	}

	items, err := s.fetchRemote(ctx)
	if err != nil {
		if obs.PricebookRefreshTotal != nil {
			obs.PricebookRefreshTotal.WithLabelValues("fallback").Inc()
		}
		s.Logger.Debug().Err(err).Msg("pricebook fetch failed, serving fallback")
		return FallbackItems()
	}
	if obs.PricebookRefreshTotal != nil {
		obs.PricebookRefreshTotal.WithLabelValues("remote").Inc()
	}
	if err := s.Cache.SetJSON(ctx, cacheKey, items); err != nil {
		s.Logger.Debug().Err(err).Msg("pricebook cache write failed")
	}
	return items
}

// Find returns the catalog entry for a SKU, if present.
func (s *Service) Find(ctx context.Context, sku string) (Item, bool) {
	for _, it := range s.Items(ctx) {
		if it.SKU == sku {
			return it, true
		}
	}
	return Item{}, false
}

func (s *Service) fetchRemote(ctx context.Context) ([]Item, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.New("pricebook endpoint returned " + resp.Status)
	}
	var decoded remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if !decoded.OK || len(decoded.Items) == 0 {
		return nil, errors.New("pricebook response not ok or empty")
	}
	items := make([]Item, 0, len(decoded.Items))
	for _, it := range decoded.Items {
		sku := strings.TrimSpace(it.SKU)
		name := strings.TrimSpace(it.Name)
		if sku == "" || name == "" || it.Rate < 0 {
			continue
		}
		items = append(items, Item{SKU: sku, Name: name, Rate: quote.FromDollars(it.Rate)})
	}
	if len(items) == 0 {
		return nil, errors.New("pricebook response had no usable items")
	}
	return items, nil
}
