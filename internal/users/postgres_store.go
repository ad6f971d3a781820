package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/fuelmap/fuelmap/internal/pagination"
	"github.com/fuelmap/fuelmap/internal/trust"
)

func trustLevelFromString(s string) trust.Level {
	if s == "" {
		return trust.LevelNewbie
	}
	return trust.Level(s)
}

// PostgresStore implements Store with PostgreSQL.
//
// Badges and history are normalized into child tables. Update rewrites
// the badge set (it is tiny) and appends only history entries that are
// not persisted yet, all inside one serializable transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed user store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (p *PostgresStore) Create(ctx context.Context, u *User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, is_admin, reputation, contributions,
		                   verified_contributions, trust_level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE(NULLIF($9, '0001-01-01T00:00:00Z'::timestamptz), NOW()))
	`, u.ID, u.Username, u.Email, u.IsAdmin, u.Reputation, u.Contributions,
		u.VerifiedContributions, string(u.TrustLevel), u.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetByID(ctx context.Context, id string) (*User, error) {
	return p.getBy(ctx, "id = $1", id)
}

func (p *PostgresStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	return p.getBy(ctx, "LOWER(username) = LOWER($1)", username)
}

func (p *PostgresStore) getBy(ctx context.Context, where, arg string) (*User, error) {
	u := &User{}
	var trustLevel string
	err := p.db.QueryRowContext(ctx, `
		SELECT id, username, email, is_admin, reputation, contributions,
		       verified_contributions, trust_level, created_at
		FROM users WHERE `+where,
		arg,
	).Scan(&u.ID, &u.Username, &u.Email, &u.IsAdmin, &u.Reputation, &u.Contributions,
		&u.VerifiedContributions, &trustLevel, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.TrustLevel = trustLevelFromString(trustLevel)

	if err := p.loadBadges(ctx, u); err != nil {
		return nil, err
	}
	if err := p.loadHistory(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (p *PostgresStore) loadBadges(ctx context.Context, u *User) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT key, name, description, awarded_at, COALESCE(metadata, '{}')
		FROM user_badges WHERE user_id = $1 ORDER BY awarded_at, key
	`, u.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	u.Badges = []Badge{}
	for rows.Next() {
		var b Badge
		var meta []byte
		if err := rows.Scan(&b.Key, &b.Name, &b.Description, &b.AwardedAt, &meta); err != nil {
			return err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &b.Metadata)
		}
		u.Badges = append(u.Badges, b)
	}
	return rows.Err()
}

func (p *PostgresStore) loadHistory(ctx context.Context, u *User) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT delta, reason, created_at
		FROM reputation_history WHERE user_id = $1 ORDER BY position
	`, u.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	u.ReputationHistory = []ReputationEntry{}
	for rows.Next() {
		var e ReputationEntry
		if err := rows.Scan(&e.Delta, &e.Reason, &e.Timestamp); err != nil {
			return err
		}
		u.ReputationHistory = append(u.ReputationHistory, e)
	}
	return rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, u *User) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE users SET
			is_admin               = $2,
			reputation             = $3,
			contributions          = $4,
			verified_contributions = $5,
			trust_level            = $6
		WHERE id = $1
	`, u.ID, u.IsAdmin, u.Reputation, u.Contributions, u.VerifiedContributions, string(u.TrustLevel))
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}

	// Rewrite the badge set. It is bounded by the catalog size, so a
	// delete-and-reinsert inside the transaction is the simplest correct
	// way to handle both grants and revocations.
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_badges WHERE user_id = $1`, u.ID); err != nil {
		return fmt.Errorf("failed to clear badges: %w", err)
	}
	for _, b := range u.Badges {
		var meta []byte
		if len(b.Metadata) > 0 {
			meta, _ = json.Marshal(b.Metadata)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_badges (user_id, key, name, description, awarded_at, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, u.ID, b.Key, b.Name, b.Description, b.AwardedAt, meta); err != nil {
			return fmt.Errorf("failed to insert badge %s: %w", b.Key, err)
		}
	}

	// History is append-only: persist only the tail that is new.
	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reputation_history WHERE user_id = $1`, u.ID,
	).Scan(&count); err != nil {
		return err
	}
	for i := count; i < len(u.ReputationHistory); i++ {
		e := u.ReputationHistory[i]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reputation_history (user_id, position, delta, reason, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, u.ID, i, e.Delta, e.Reason, e.Timestamp); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}
	}

	return tx.Commit()
}

func (p *PostgresStore) List(ctx context.Context, limit int) ([]*User, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, username, email, is_admin, reputation, contributions,
		       verified_contributions, trust_level, created_at
		FROM users ORDER BY created_at DESC, id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return p.scanUsers(ctx, rows)
}

func (p *PostgresStore) ListPage(ctx context.Context, after *pagination.Cursor, limit int) ([]*User, error) {
	if limit <= 0 {
		limit = 100
	}
	if after == nil {
		return p.List(ctx, limit)
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, username, email, is_admin, reputation, contributions,
		       verified_contributions, trust_level, created_at
		FROM users
		WHERE (created_at, id) < ($1, $2)
		ORDER BY created_at DESC, id DESC LIMIT $3
	`, after.CreatedAt, after.ID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return p.scanUsers(ctx, rows)
}

func (p *PostgresStore) scanUsers(ctx context.Context, rows *sql.Rows) ([]*User, error) {
	var out []*User
	for rows.Next() {
		u := &User{}
		var trustLevel string
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.IsAdmin, &u.Reputation,
			&u.Contributions, &u.VerifiedContributions, &trustLevel, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.TrustLevel = trustLevelFromString(trustLevel)
		if err := p.loadBadges(ctx, u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
