package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openautogroup/lotview/internal/store"
)

// PGAuditStore implements store.AuditStore backed by Postgres.
type PGAuditStore struct {
	db *sql.DB
}

func NewPGAuditStore(db *sql.DB) *PGAuditStore {
	return &PGAuditStore{db: db}
}

func (s *PGAuditStore) Write(ctx context.Context, l *store.AuditLog) error {
	l.CreatedAt = time.Now()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO audit_logs (dealership_id, user_id, action, resource, resource_id, details, ip_address, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		l.DealershipID, l.UserID, l.Action, l.Resource, nilStr(l.ResourceID),
		nilStr(l.Details), nilStr(l.IPAddress), l.CreatedAt,
	).Scan(&l.ID)
	return mapErr(err)
}

func (s *PGAuditStore) List(ctx context.Context, dealershipID int64, limit int) ([]store.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, dealership_id, user_id, action, resource, resource_id, details, ip_address, created_at
		 FROM audit_logs WHERE dealership_id = $1 ORDER BY created_at DESC LIMIT $2`,
		dealershipID, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []store.AuditLog
	for rows.Next() {
		var l store.AuditLog
		var resourceID, details, ip *string
		if err := rows.Scan(&l.ID, &l.DealershipID, &l.UserID, &l.Action, &l.Resource,
			&resourceID, &details, &ip, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.ResourceID = derefStr(resourceID)
		l.Details = derefStr(details)
		l.IPAddress = derefStr(ip)
		result = append(result, l)
	}
	return result, rows.Err()
}

func (s *PGAuditStore) StartImpersonation(ctx context.Context, superAdminID, targetUserID int64) (*store.ImpersonationSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapErr(err)
	}
	defer tx.Rollback()

	now := time.Now()
	// Starting a new session ends the prior one.
	if _, err := tx.ExecContext(ctx,
		`UPDATE impersonation_sessions SET ended_at = $1
		 WHERE super_admin_id = $2 AND ended_at IS NULL`,
		now, superAdminID); err != nil {
		return nil, mapErr(err)
	}

	sess := &store.ImpersonationSession{
		ID:           uuid.Must(uuid.NewV7()),
		SuperAdminID: superAdminID,
		TargetUserID: targetUserID,
		StartedAt:    now,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO impersonation_sessions (id, super_admin_id, target_user_id, started_at, actions_performed)
		 VALUES ($1,$2,$3,$4,0)`,
		sess.ID, sess.SuperAdminID, sess.TargetUserID, sess.StartedAt); err != nil {
		return nil, mapErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapErr(err)
	}
	return sess, nil
}

func (s *PGAuditStore) ActiveImpersonation(ctx context.Context, superAdminID int64) (*store.ImpersonationSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, super_admin_id, target_user_id, started_at, ended_at, actions_performed
		 FROM impersonation_sessions
		 WHERE super_admin_id = $1 AND ended_at IS NULL
		 ORDER BY started_at DESC LIMIT 1`, superAdminID)

	var sess store.ImpersonationSession
	err := row.Scan(&sess.ID, &sess.SuperAdminID, &sess.TargetUserID,
		&sess.StartedAt, &sess.EndedAt, &sess.ActionsPerformed)
	if err != nil {
		return nil, mapErr(err)
	}
	return &sess, nil
}

func (s *PGAuditStore) EndImpersonation(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE impersonation_sessions SET ended_at = $1 WHERE id = $2 AND ended_at IS NULL`,
		time.Now(), id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGAuditStore) IncrementImpersonationActions(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE impersonation_sessions SET actions_performed = actions_performed + 1 WHERE id = $1`, id)
	return mapErr(err)
}

// PGAPILogStore implements store.APILogStore backed by Postgres.
type PGAPILogStore struct {
	db *sql.DB
}

func NewPGAPILogStore(db *sql.DB) *PGAPILogStore {
	return &PGAPILogStore{db: db}
}

func (s *PGAPILogStore) Write(ctx context.Context, l *store.APICallLog) error {
	l.CreatedAt = time.Now()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO api_logs (dealership_id, service, endpoint, status, latency_ms, error, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		l.DealershipID, l.Service, l.Endpoint, l.Status, l.LatencyMs, nilStr(l.Error), l.CreatedAt,
	).Scan(&l.ID)
	return mapErr(err)
}

func (s *PGAPILogStore) List(ctx context.Context, dealershipID int64, service string, limit int) ([]store.APICallLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id, dealership_id, service, endpoint, status, latency_ms, error, created_at
		 FROM api_logs WHERE dealership_id = $1`
	args := []any{dealershipID}
	if service != "" {
		q += ` AND service = $2`
		args = append(args, service)
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []store.APICallLog
	for rows.Next() {
		var l store.APICallLog
		var errMsg *string
		if err := rows.Scan(&l.ID, &l.DealershipID, &l.Service, &l.Endpoint,
			&l.Status, &l.LatencyMs, &errMsg, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Error = derefStr(errMsg)
		result = append(result, l)
	}
	return result, rows.Err()
}
