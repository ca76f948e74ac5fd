package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/openautogroup/lotview/internal/store"
)

// PGScrapeRunStore implements store.ScrapeRunStore backed by Postgres.
type PGScrapeRunStore struct {
	db *sql.DB
}

func NewPGScrapeRunStore(db *sql.DB) *PGScrapeRunStore {
	return &PGScrapeRunStore{db: db}
}

const scrapeRunCols = `id, dealership_id, triggered_by, method, retry_count,
	vehicles_found, vehicles_inserted, vehicles_updated, vehicles_deleted,
	status, error, started_at, ended_at`

func (s *PGScrapeRunStore) Create(ctx context.Context, r *store.ScrapeRun) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.Must(uuid.NewV7())
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if r.Status == "" {
		r.Status = "running"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_runs (id, dealership_id, triggered_by, method, retry_count,
			vehicles_found, vehicles_inserted, vehicles_updated, vehicles_deleted,
			status, error, started_at, ended_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		r.ID, r.DealershipID, string(r.TriggeredBy), nilStr(r.Method), r.RetryCount,
		r.VehiclesFound, r.VehiclesInserted, r.VehiclesUpdated, r.VehiclesDeleted,
		r.Status, nilStr(r.Error), r.StartedAt, r.EndedAt)
	return mapErr(err)
}

func (s *PGScrapeRunStore) Update(ctx context.Context, r *store.ScrapeRun) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scrape_runs SET method=$1, retry_count=$2,
			vehicles_found=$3, vehicles_inserted=$4, vehicles_updated=$5, vehicles_deleted=$6,
			status=$7, error=$8, ended_at=$9
		 WHERE id=$10`,
		nilStr(r.Method), r.RetryCount,
		r.VehiclesFound, r.VehiclesInserted, r.VehiclesUpdated, r.VehiclesDeleted,
		r.Status, nilStr(r.Error), r.EndedAt, r.ID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGScrapeRunStore) Get(ctx context.Context, id uuid.UUID, dealershipID int64) (*store.ScrapeRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scrapeRunCols+` FROM scrape_runs WHERE id = $1 AND dealership_id = $2`,
		id, dealershipID)
	return scanScrapeRun(row)
}

func (s *PGScrapeRunStore) ListByDealership(ctx context.Context, dealershipID int64, limit int) ([]store.ScrapeRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scrapeRunCols+` FROM scrape_runs
		 WHERE dealership_id = $1 ORDER BY started_at DESC LIMIT $2`,
		dealershipID, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []store.ScrapeRun
	for rows.Next() {
		r, err := scanScrapeRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

func (s *PGScrapeRunStore) MarkRunningInterrupted(ctx context.Context, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scrape_runs SET status = 'interrupted', ended_at = $1 WHERE status = 'running'`, at)
	if err != nil {
		return 0, mapErr(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanScrapeRun(row rowScanner) (*store.ScrapeRun, error) {
	var r store.ScrapeRun
	var trigger string
	var method, errMsg *string
	err := row.Scan(&r.ID, &r.DealershipID, &trigger, &method, &r.RetryCount,
		&r.VehiclesFound, &r.VehiclesInserted, &r.VehiclesUpdated, &r.VehiclesDeleted,
		&r.Status, &errMsg, &r.StartedAt, &r.EndedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	r.TriggeredBy = store.ScrapeTrigger(trigger)
	r.Method = derefStr(method)
	r.Error = derefStr(errMsg)
	return &r, nil
}
