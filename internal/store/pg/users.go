package pg

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/openautogroup/lotview/internal/store"
)

// PGUserStore implements store.UserStore backed by Postgres.
type PGUserStore struct {
	db *sql.DB
}

func NewPGUserStore(db *sql.DB) *PGUserStore {
	return &PGUserStore{db: db}
}

const userCols = `id, email, password_hash, name, role, dealership_id, is_active, created_at, updated_at`

func (s *PGUserStore) Create(ctx context.Context, u *store.User) error {
	u.Email = strings.ToLower(u.Email)
	now := time.Now()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash, name, role, dealership_id, is_active, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$7) RETURNING id`,
		u.Email, u.PasswordHash, u.Name, string(u.Role), u.DealershipID, u.IsActive, now,
	).Scan(&u.ID)
	if err != nil {
		return mapErr(err)
	}
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

func (s *PGUserStore) Get(ctx context.Context, id int64) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *PGUserStore) GetByEmail(ctx context.Context, email string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM users WHERE email = $1`, strings.ToLower(email))
	return scanUser(row)
}

func (s *PGUserStore) ListByDealership(ctx context.Context, dealershipID int64) ([]store.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userCols+` FROM users WHERE dealership_id = $1 ORDER BY name`, dealershipID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []store.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *u)
	}
	return result, rows.Err()
}

func (s *PGUserStore) Update(ctx context.Context, u *store.User) error {
	u.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET email=$1, name=$2, role=$3, dealership_id=$4, is_active=$5, updated_at=$6
		 WHERE id=$7`,
		strings.ToLower(u.Email), u.Name, string(u.Role), u.DealershipID, u.IsActive, u.UpdatedAt, u.ID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGUserStore) SetPassword(ctx context.Context, userID int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash=$1, updated_at=$2 WHERE id=$3`,
		passwordHash, time.Now(), userID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGUserStore) CreateResetToken(ctx context.Context, t *store.PasswordResetToken) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO password_reset_tokens (user_id, token_hash, expires_at, created_at)
		 VALUES ($1,$2,$3,$4) RETURNING id`,
		t.UserID, t.TokenHash, t.ExpiresAt, time.Now(),
	).Scan(&t.ID)
	return mapErr(err)
}

func (s *PGUserStore) ActiveResetTokens(ctx context.Context, now time.Time) ([]store.PasswordResetToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, used_at
		 FROM password_reset_tokens
		 WHERE used_at IS NULL AND expires_at > $1`, now)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []store.PasswordResetToken
	for rows.Next() {
		var t store.PasswordResetToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.UsedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *PGUserStore) MarkResetTokenUsed(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE password_reset_tokens SET used_at = $1 WHERE id = $2 AND used_at IS NULL`,
		time.Now(), id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanUser(row rowScanner) (*store.User, error) {
	var u store.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &role, &u.DealershipID,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	u.Role = store.Role(role)
	return &u, nil
}
