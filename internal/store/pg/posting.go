package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/openautogroup/lotview/internal/store"
)

// PGPostingStore implements store.PostingStore backed by Postgres.
type PGPostingStore struct {
	db *sql.DB
}

func NewPGPostingStore(db *sql.DB) *PGPostingStore {
	return &PGPostingStore{db: db}
}

const queueCols = `id, dealership_id, user_id, vehicle_id, account_id, template_id,
	status, priority, attempt_count, last_error, scheduled_for, posted_at,
	external_listing_id, created_at, updated_at`

func (s *PGPostingStore) Enqueue(ctx context.Context, item *store.PostingQueueItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.Must(uuid.NewV7())
	}
	if item.Status == "" {
		item.Status = store.PostingQueued
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posting_queue (id, dealership_id, user_id, vehicle_id, account_id, template_id,
			status, priority, attempt_count, scheduled_for, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)`,
		item.ID, item.DealershipID, item.UserID, item.VehicleID, item.AccountID, nilStr(item.TemplateID),
		string(item.Status), item.Priority, item.AttemptCount, item.ScheduledFor, now)
	if err != nil {
		return mapErr(err)
	}
	item.CreatedAt, item.UpdatedAt = now, now
	return nil
}

func (s *PGPostingStore) Get(ctx context.Context, id uuid.UUID, dealershipID int64) (*store.PostingQueueItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+queueCols+` FROM posting_queue WHERE id = $1 AND dealership_id = $2`,
		id, dealershipID)
	return scanQueueItem(row)
}

func (s *PGPostingStore) NextReady(ctx context.Context, now time.Time) (*store.PostingQueueItem, error) {
	// FOR UPDATE SKIP LOCKED lets multiple workers claim without contention;
	// the claim and the status flip happen in one statement.
	row := s.db.QueryRowContext(ctx,
		`UPDATE posting_queue SET status = 'posting', updated_at = $1
		 WHERE id = (
			SELECT id FROM posting_queue
			WHERE status = 'queued' AND (scheduled_for IS NULL OR scheduled_for <= $1)
			ORDER BY priority ASC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+queueCols, now)
	return scanQueueItem(row)
}

func (s *PGPostingStore) Update(ctx context.Context, item *store.PostingQueueItem) error {
	item.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE posting_queue SET status=$1, priority=$2, attempt_count=$3, last_error=$4,
			scheduled_for=$5, posted_at=$6, external_listing_id=$7, updated_at=$8
		 WHERE id=$9`,
		string(item.Status), item.Priority, item.AttemptCount, nilStr(item.LastError),
		item.ScheduledFor, item.PostedAt, nilStr(item.ExternalListingID), item.UpdatedAt, item.ID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGPostingStore) ListByDealership(ctx context.Context, dealershipID int64, page, limit int) ([]store.PostingQueueItem, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := 0
	if page > 1 {
		offset = (page - 1) * limit
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posting_queue WHERE dealership_id = $1`, dealershipID).Scan(&total); err != nil {
		return nil, 0, mapErr(err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+queueCols+` FROM posting_queue WHERE dealership_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		dealershipID, limit, offset)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	defer rows.Close()

	items := []store.PostingQueueItem{}
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *item)
	}
	return items, total, rows.Err()
}

func (s *PGPostingStore) MarkInterrupted(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE posting_queue SET status = 'interrupted', updated_at = $1
		 WHERE id = $2 AND status = 'posting'`,
		time.Now(), id)
	return mapErr(err)
}

func (s *PGPostingStore) DailySlotsUsed(ctx context.Context, userID, dealershipID int64, now time.Time) (int, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posting_daily_slots
		 WHERE user_id = $1 AND dealership_id = $2 AND reserved_at >= $3`,
		userID, dealershipID, dayStart).Scan(&n)
	return n, mapErr(err)
}

func (s *PGPostingStore) ReserveDailySlot(ctx context.Context, userID, dealershipID int64, cap int, now time.Time) error {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer tx.Rollback()

	// Serialize concurrent mints for the same (user, dealership) pair so two
	// requests at cap-1 cannot both count-then-insert.
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`,
		userID, dealershipID); err != nil {
		return mapErr(err)
	}

	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posting_daily_slots
		 WHERE user_id = $1 AND dealership_id = $2 AND reserved_at >= $3`,
		userID, dealershipID, dayStart).Scan(&n); err != nil {
		return mapErr(err)
	}
	if n >= cap {
		return store.ErrInvalid
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO posting_daily_slots (user_id, dealership_id, reserved_at) VALUES ($1,$2,$3)`,
		userID, dealershipID, now); err != nil {
		return mapErr(err)
	}
	return tx.Commit()
}

func (s *PGPostingStore) UpsertListing(ctx context.Context, l *store.MarketplaceListing) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.Must(uuid.NewV7())
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO marketplace_listings (id, dealership_id, vehicle_id, account_id, platform,
			listing_url, status, posted_at, posted_by_id)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (vehicle_id, account_id) DO UPDATE SET
			listing_url = EXCLUDED.listing_url,
			status = EXCLUDED.status,
			posted_at = EXCLUDED.posted_at,
			posted_by_id = EXCLUDED.posted_by_id`,
		l.ID, l.DealershipID, l.VehicleID, l.AccountID, l.Platform,
		nilStr(l.ListingURL), l.Status, l.PostedAt, l.PostedByID)
	return mapErr(err)
}

func (s *PGPostingStore) ListingsByVehicle(ctx context.Context, vehicleID, dealershipID int64) ([]store.MarketplaceListing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, dealership_id, vehicle_id, account_id, platform, listing_url, status, posted_at, posted_by_id
		 FROM marketplace_listings WHERE vehicle_id = $1 AND dealership_id = $2`,
		vehicleID, dealershipID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []store.MarketplaceListing
	for rows.Next() {
		var l store.MarketplaceListing
		var url *string
		if err := rows.Scan(&l.ID, &l.DealershipID, &l.VehicleID, &l.AccountID, &l.Platform,
			&url, &l.Status, &l.PostedAt, &l.PostedByID); err != nil {
			return nil, err
		}
		l.ListingURL = derefStr(url)
		result = append(result, l)
	}
	return result, rows.Err()
}

func scanQueueItem(row rowScanner) (*store.PostingQueueItem, error) {
	var item store.PostingQueueItem
	var status string
	var templateID, lastError, extListing *string
	err := row.Scan(&item.ID, &item.DealershipID, &item.UserID, &item.VehicleID, &item.AccountID,
		&templateID, &status, &item.Priority, &item.AttemptCount, &lastError,
		&item.ScheduledFor, &item.PostedAt, &extListing, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	item.Status = store.PostingStatus(status)
	item.TemplateID = derefStr(templateID)
	item.LastError = derefStr(lastError)
	item.ExternalListingID = derefStr(extListing)
	return &item, nil
}
