package stations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL.
//
// Prices are normalized into a child table keyed by station, ordered by
// an explicit position column so submission order survives round-trips.
// Downvotes live in their own table with a (price_id, user_id) primary
// key, which enforces unique membership at the schema level. Update
// upserts price rows rather than rewriting them: prices are append-only
// and only their moderation fields ever change.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed station store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// haversineMeters is the SQL distance between a station row and the
// point bound as ($1, $2) = (lat, lon). least() guards acos from
// rounding drift just outside [-1, 1].
const haversineMeters = `6371010 * acos(least(1.0,
	cos(radians($1)) * cos(radians(lat)) * cos(radians(lon) - radians($2))
	+ sin(radians($1)) * sin(radians(lat))))`

func (p *PostgresStore) Create(ctx context.Context, s *Station) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stations (id, name, address, lat, lon, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.Name, s.Address, s.Lat, s.Lon, s.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrExists
		}
		return fmt.Errorf("failed to insert station: %w", err)
	}

	if err := p.savePrices(ctx, tx, s); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) GetByID(ctx context.Context, id string) (*Station, error) {
	stations, err := p.query(ctx, "WHERE id = $1", "", id)
	if err != nil {
		return nil, err
	}
	if len(stations) == 0 {
		return nil, ErrNotFound
	}
	return stations[0], nil
}

func (p *PostgresStore) Update(ctx context.Context, s *Station) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE stations SET name = $2, address = $3, lat = $4, lon = $5
		WHERE id = $1
	`, s.ID, s.Name, s.Address, s.Lat, s.Lon)
	if err != nil {
		return fmt.Errorf("failed to update station: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if err := p.savePrices(ctx, tx, s); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM stations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete station: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]*Station, error) {
	clause := fmt.Sprintf("WHERE %s <= $3", haversineMeters)
	order := fmt.Sprintf("ORDER BY %s ASC", haversineMeters)
	if limit > 0 {
		order += fmt.Sprintf(" LIMIT %d", limit)
	}
	return p.query(ctx, clause, order, lat, lon, radiusMeters)
}

func (p *PostgresStore) List(ctx context.Context, f ListFilter) ([]*Station, int, error) {
	where := "WHERE TRUE"
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Name != "" {
		where += fmt.Sprintf(" AND name ILIKE %s", arg("%"+f.Name+"%"))
	}
	if f.FuelType != "" || f.MinPrice != nil || f.MaxPrice != nil {
		sub := "SELECT 1 FROM prices pr WHERE pr.station_id = stations.id"
		if f.FuelType != "" {
			sub += fmt.Sprintf(" AND pr.fuel_type = %s", arg(f.FuelType))
		}
		if f.MinPrice != nil {
			sub += fmt.Sprintf(" AND pr.amount >= %s", arg(*f.MinPrice))
		}
		if f.MaxPrice != nil {
			sub += fmt.Sprintf(" AND pr.amount <= %s", arg(*f.MaxPrice))
		}
		where += " AND EXISTS (" + sub + ")"
	}

	var total int
	if err := p.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM stations "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count stations: %w", err)
	}

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	order := fmt.Sprintf("ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, (page-1)*limit)

	stations, err := p.query(ctx, where, order, args...)
	if err != nil {
		return nil, 0, err
	}
	return stations, total, nil
}

func (p *PostgresStore) Search(ctx context.Context, name, addressSegment string, limit int) ([]*Station, error) {
	if limit <= 0 {
		limit = 5
	}
	clause := `WHERE (($1 != '' AND name ILIKE '%' || $1 || '%')
		OR ($2 != '' AND address ILIKE '%' || $2 || '%'))`
	order := fmt.Sprintf("ORDER BY created_at DESC LIMIT %d", limit)
	return p.query(ctx, clause, order, name, addressSegment)
}

func (p *PostgresStore) ListPending(ctx context.Context) ([]*Station, error) {
	return p.query(ctx, `
		WHERE EXISTS (SELECT 1 FROM prices pr
		              WHERE pr.station_id = stations.id AND pr.status = 'pending')`,
		"ORDER BY created_at DESC")
}

func (p *PostgresStore) ListFlagged(ctx context.Context) ([]*Station, error) {
	return p.query(ctx, `
		WHERE EXISTS (SELECT 1 FROM prices pr
		              LEFT JOIN price_downvotes dv ON dv.price_id = pr.id
		              WHERE pr.station_id = stations.id
		                AND (pr.status = 'pending' OR dv.user_id IS NOT NULL))`,
		"ORDER BY created_at DESC")
}

// query loads station rows matching the clause plus their price lists.
func (p *PostgresStore) query(ctx context.Context, where, order string, args ...any) ([]*Station, error) {
	q := "SELECT id, name, address, lat, lon, created_at FROM stations " + where
	if order != "" {
		q += " " + order
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	var stations []*Station
	var ids []string
	for rows.Next() {
		var s Station
		if err := rows.Scan(&s.ID, &s.Name, &s.Address, &s.Lat, &s.Lon, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan station: %w", err)
		}
		s.Prices = []Price{}
		stations = append(stations, &s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(stations) == 0 {
		return stations, nil
	}

	if err := p.loadPrices(ctx, stations, ids); err != nil {
		return nil, err
	}
	return stations, nil
}

func (p *PostgresStore) loadPrices(ctx context.Context, stations []*Station, ids []string) error {
	byID := make(map[string]*Station, len(stations))
	for _, s := range stations {
		byID[s.ID] = s
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, station_id, fuel_type, amount, queue_status,
		       submitted_by, submitted_at, status, COALESCE(status_reason, '')
		FROM prices
		WHERE station_id = ANY($1)
		ORDER BY station_id, position ASC
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	priceIndex := make(map[string]*Price)
	for rows.Next() {
		var pr Price
		var stationID string
		var status, reason string
		if err := rows.Scan(&pr.ID, &stationID, &pr.FuelType, &pr.Amount, &pr.QueueStatus,
			&pr.SubmittedBy, &pr.SubmittedAt, &status, &reason); err != nil {
			return fmt.Errorf("failed to scan price: %w", err)
		}
		pr.Moderation = moderationFromParts(Status(status), reason)
		s := byID[stationID]
		s.Prices = append(s.Prices, pr)
		priceIndex[pr.ID] = &s.Prices[len(s.Prices)-1]
	}
	if err := rows.Err(); err != nil {
		return err
	}

	dvRows, err := p.db.QueryContext(ctx, `
		SELECT dv.price_id, dv.user_id
		FROM price_downvotes dv
		JOIN prices pr ON pr.id = dv.price_id
		WHERE pr.station_id = ANY($1)
		ORDER BY dv.voted_at ASC
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query downvotes: %w", err)
	}
	defer dvRows.Close()

	for dvRows.Next() {
		var priceID, userID string
		if err := dvRows.Scan(&priceID, &userID); err != nil {
			return fmt.Errorf("failed to scan downvote: %w", err)
		}
		if pr, ok := priceIndex[priceID]; ok {
			pr.Downvotes = append(pr.Downvotes, userID)
		}
	}
	return dvRows.Err()
}

// savePrices upserts the station's price rows and downvote memberships.
// Existing prices only change in their mutable columns.
func (p *PostgresStore) savePrices(ctx context.Context, tx *sql.Tx, s *Station) error {
	for i := range s.Prices {
		pr := &s.Prices[i]
		var reason sql.NullString
		if r := pr.Moderation.Reason(); r != "" {
			reason = sql.NullString{String: r, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO prices (id, station_id, position, fuel_type, amount,
			                    queue_status, submitted_by, submitted_at, status, status_reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE
			SET queue_status = EXCLUDED.queue_status,
			    status = EXCLUDED.status,
			    status_reason = EXCLUDED.status_reason
		`, pr.ID, s.ID, i, pr.FuelType, pr.Amount, pr.QueueStatus,
			pr.SubmittedBy, pr.SubmittedAt, string(pr.Moderation.Status()), reason)
		if err != nil {
			return fmt.Errorf("failed to upsert price: %w", err)
		}

		for _, userID := range pr.Downvotes {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO price_downvotes (price_id, user_id, voted_at)
				VALUES ($1, $2, NOW())
				ON CONFLICT (price_id, user_id) DO NOTHING
			`, pr.ID, userID)
			if err != nil {
				return fmt.Errorf("failed to insert downvote: %w", err)
			}
		}
	}
	return nil
}
