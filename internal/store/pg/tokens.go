package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/openautogroup/lotview/internal/store"
)

// PGAPITokenStore implements store.APITokenStore backed by Postgres.
type PGAPITokenStore struct {
	db *sql.DB
}

func NewPGAPITokenStore(db *sql.DB) *PGAPITokenStore {
	return &PGAPITokenStore{db: db}
}

const apiTokenCols = `id, dealership_id, token_name, token_hash, token_prefix,
	permissions, expires_at, is_active, last_used_at, created_at`

func (s *PGAPITokenStore) Create(ctx context.Context, t *store.ExternalAPIToken) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.Must(uuid.NewV7())
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO external_api_tokens (id, dealership_id, token_name, token_hash, token_prefix,
			permissions, expires_at, is_active, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		t.ID, t.DealershipID, t.TokenName, t.TokenHash, t.TokenPrefix,
		jsonArray(t.Permissions), t.ExpiresAt, t.IsActive, now)
	if err != nil {
		return mapErr(err)
	}
	t.CreatedAt = now
	return nil
}

func (s *PGAPITokenStore) CandidatesByPrefix(ctx context.Context, prefix string) ([]store.ExternalAPIToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+apiTokenCols+` FROM external_api_tokens
		 WHERE token_prefix = $1 AND is_active = true`, prefix)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []store.ExternalAPIToken
	for rows.Next() {
		t, err := scanAPIToken(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

func (s *PGAPITokenStore) ListByDealership(ctx context.Context, dealershipID int64) ([]store.ExternalAPIToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+apiTokenCols+` FROM external_api_tokens
		 WHERE dealership_id = $1 ORDER BY created_at DESC`, dealershipID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []store.ExternalAPIToken
	for rows.Next() {
		t, err := scanAPIToken(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

func (s *PGAPITokenStore) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE external_api_tokens SET last_used_at = $1 WHERE id = $2`, at, id)
	return mapErr(err)
}

func (s *PGAPITokenStore) Revoke(ctx context.Context, id uuid.UUID, dealershipID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE external_api_tokens SET is_active = false WHERE id = $1 AND dealership_id = $2`,
		id, dealershipID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanAPIToken(row rowScanner) (*store.ExternalAPIToken, error) {
	var t store.ExternalAPIToken
	var perms []byte
	err := row.Scan(&t.ID, &t.DealershipID, &t.TokenName, &t.TokenHash, &t.TokenPrefix,
		&perms, &t.ExpiresAt, &t.IsActive, &t.LastUsedAt, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	scanJSONArray(perms, &t.Permissions)
	return &t, nil
}

// PGPostingTokenStore implements store.PostingTokenStore backed by Postgres.
type PGPostingTokenStore struct {
	db *sql.DB
}

func NewPGPostingTokenStore(db *sql.DB) *PGPostingTokenStore {
	return &PGPostingTokenStore{db: db}
}

func (s *PGPostingTokenStore) Create(ctx context.Context, t *store.PostingToken) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.Must(uuid.NewV7())
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posting_tokens (id, token, user_id, vehicle_id, platform, expires_at, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.Token, t.UserID, t.VehicleID, t.Platform, t.ExpiresAt, now)
	if err != nil {
		return mapErr(err)
	}
	t.CreatedAt = now
	return nil
}

func (s *PGPostingTokenStore) Consume(ctx context.Context, raw string, userID, vehicleID int64, platform string, now time.Time) (*store.PostingToken, error) {
	// Single UPDATE guards the one-shot property: the used_at IS NULL
	// predicate means a second consume matches zero rows.
	row := s.db.QueryRowContext(ctx,
		`UPDATE posting_tokens SET used_at = $1
		 WHERE token = $2 AND user_id = $3 AND vehicle_id = $4 AND platform = $5
		   AND used_at IS NULL AND expires_at > $1
		 RETURNING id, token, user_id, vehicle_id, platform, expires_at, used_at, created_at`,
		now, raw, userID, vehicleID, platform)

	var t store.PostingToken
	err := row.Scan(&t.ID, &t.Token, &t.UserID, &t.VehicleID, &t.Platform,
		&t.ExpiresAt, &t.UsedAt, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (s *PGPostingTokenStore) Peek(ctx context.Context, raw string, userID, vehicleID int64, platform string, now time.Time) (*store.PostingToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, token, user_id, vehicle_id, platform, expires_at, used_at, created_at
		 FROM posting_tokens
		 WHERE token = $2 AND user_id = $3 AND vehicle_id = $4 AND platform = $5
		   AND used_at IS NULL AND expires_at > $1`,
		now, raw, userID, vehicleID, platform)

	var t store.PostingToken
	err := row.Scan(&t.ID, &t.Token, &t.UserID, &t.VehicleID, &t.Platform,
		&t.ExpiresAt, &t.UsedAt, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (s *PGPostingTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM posting_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, mapErr(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
