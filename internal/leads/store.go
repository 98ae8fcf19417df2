package leads

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/flowio-app/backend-demo/internal/quote"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Record is one captured demo lead with its delivery outcome.
type Record struct {
	ID             string            `json:"id,omitempty"`
	LeadID         string            `json:"leadId"`
	Name           string            `json:"name"`
	Trade          string            `json:"trade"`
	Phone          string            `json:"phone"`
	Email          string            `json:"email"`
	Items          json.RawMessage   `json:"items"`
	TotalCents     quote.Money       `json:"totalCents"`
	Attribution    map[string]string `json:"attribution"`
	Delivered      bool              `json:"delivered"`
	ResponseStatus *int              `json:"responseStatus,omitempty"`
	DeliveryError  string            `json:"deliveryError,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Store persists the lead capture log.
type Store struct {
	DB DB
}

// Record appends a captured lead to the log.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if s == nil || s.DB == nil {
		return errors.New("leads store not configured")
	}
	items := rec.Items
	if len(items) == 0 {
		items = json.RawMessage("[]")
	}
	attrib, err := json.Marshal(rec.Attribution)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO demo_leads
			(lead_id, name, trade, phone, email, items, total_cents, attribution, delivered, response_status, delivery_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.LeadID, rec.Name, rec.Trade, rec.Phone, rec.Email,
		items, rec.TotalCents, attrib, rec.Delivered, rec.ResponseStatus, nullable(rec.DeliveryError),
	)
	return err
}

// ListByLead returns the most recent captures for a lead identifier.
func (s *Store) ListByLead(ctx context.Context, leadID string, limit int) ([]Record, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("leads store not configured")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id::text, lead_id, name, trade, phone, email, items, total_cents, attribution,
		       delivered, response_status, COALESCE(delivery_error, ''), created_at
		FROM demo_leads
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		leadID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		var (
			rec    Record
			attrib []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.LeadID, &rec.Name, &rec.Trade, &rec.Phone, &rec.Email,
			&rec.Items, &rec.TotalCents, &attrib,
			&rec.Delivered, &rec.ResponseStatus, &rec.DeliveryError, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(attrib) > 0 {
			_ = json.Unmarshal(attrib, &rec.Attribution)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
