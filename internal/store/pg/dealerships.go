package pg

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/openautogroup/lotview/internal/store"
)

// PGDealershipStore implements store.DealershipStore backed by Postgres.
type PGDealershipStore struct {
	db *sql.DB
}

func NewPGDealershipStore(db *sql.DB) *PGDealershipStore {
	return &PGDealershipStore{db: db}
}

const dealershipCols = `id, slug, subdomain, name, address, phone, website, is_active,
	scrape_webhook_secret, extension_signing_key, ghl_location_id, ghl_api_key,
	messenger_page_id, scrape_source_url, posting_daily_cap,
	ai_model, ai_temperature, ai_max_tokens, ai_reply_prompt,
	created_at, updated_at`

func (s *PGDealershipStore) Create(ctx context.Context, d *store.Dealership) error {
	d.Slug = strings.ToLower(d.Slug)
	d.Subdomain = strings.ToLower(d.Subdomain)
	if !store.ValidSlug(d.Slug) || !store.ValidSlug(d.Subdomain) {
		return store.ErrInvalid
	}
	now := time.Now()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO dealerships (slug, subdomain, name, address, phone, website, is_active,
			scrape_webhook_secret, extension_signing_key, ghl_location_id, ghl_api_key,
			messenger_page_id, scrape_source_url, posting_daily_cap,
			ai_model, ai_temperature, ai_max_tokens, ai_reply_prompt, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$19)
		 RETURNING id`,
		d.Slug, d.Subdomain, d.Name, nilStr(d.Address), nilStr(d.Phone), nilStr(d.Website), d.IsActive,
		nilStr(d.ScrapeWebhookSecret), nilStr(d.ExtensionSigningKey), nilStr(d.GHLLocationID), nilStr(d.GHLAPIKey),
		nilStr(d.MessengerPageID), nilStr(d.ScrapeSourceURL), d.PostingDailyCap,
		nilStr(d.AIModel), d.AITemperature, d.AIMaxTokens, nilStr(d.AIReplyPrompt), now,
	).Scan(&d.ID)
	if err != nil {
		return mapErr(err)
	}
	d.CreatedAt, d.UpdatedAt = now, now
	return nil
}

func (s *PGDealershipStore) Get(ctx context.Context, id int64) (*store.Dealership, error) {
	return s.getWhere(ctx, "id = $1", id)
}

func (s *PGDealershipStore) GetBySlug(ctx context.Context, slug string) (*store.Dealership, error) {
	return s.getWhere(ctx, "slug = $1", strings.ToLower(slug))
}

func (s *PGDealershipStore) GetBySubdomain(ctx context.Context, subdomain string) (*store.Dealership, error) {
	return s.getWhere(ctx, "subdomain = $1", strings.ToLower(subdomain))
}

func (s *PGDealershipStore) GetByGHLLocation(ctx context.Context, externalID string) (*store.Dealership, error) {
	d, err := s.getWhere(ctx, "ghl_location_id = $1", externalID)
	if err == nil {
		return d, nil
	}
	return s.getWhere(ctx, "messenger_page_id = $1", externalID)
}

func (s *PGDealershipStore) ListActive(ctx context.Context) ([]store.Dealership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+dealershipCols+` FROM dealerships WHERE is_active = true ORDER BY id`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []store.Dealership
	for rows.Next() {
		d, err := scanDealership(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (s *PGDealershipStore) Update(ctx context.Context, d *store.Dealership) error {
	d.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE dealerships SET name=$1, address=$2, phone=$3, website=$4, is_active=$5,
			scrape_webhook_secret=$6, extension_signing_key=$7, ghl_location_id=$8, ghl_api_key=$9,
			messenger_page_id=$10, scrape_source_url=$11, posting_daily_cap=$12,
			ai_model=$13, ai_temperature=$14, ai_max_tokens=$15, ai_reply_prompt=$16, updated_at=$17
		 WHERE id=$18`,
		d.Name, nilStr(d.Address), nilStr(d.Phone), nilStr(d.Website), d.IsActive,
		nilStr(d.ScrapeWebhookSecret), nilStr(d.ExtensionSigningKey), nilStr(d.GHLLocationID), nilStr(d.GHLAPIKey),
		nilStr(d.MessengerPageID), nilStr(d.ScrapeSourceURL), d.PostingDailyCap,
		nilStr(d.AIModel), d.AITemperature, d.AIMaxTokens, nilStr(d.AIReplyPrompt), d.UpdatedAt, d.ID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGDealershipStore) getWhere(ctx context.Context, where string, arg any) (*store.Dealership, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+dealershipCols+` FROM dealerships WHERE `+where, arg)
	return scanDealership(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDealership(row rowScanner) (*store.Dealership, error) {
	var d store.Dealership
	var address, phone, website, webhookSecret, signingKey, ghlLoc, ghlKey, pageID, sourceURL, aiModel, aiPrompt *string
	err := row.Scan(&d.ID, &d.Slug, &d.Subdomain, &d.Name, &address, &phone, &website, &d.IsActive,
		&webhookSecret, &signingKey, &ghlLoc, &ghlKey,
		&pageID, &sourceURL, &d.PostingDailyCap,
		&aiModel, &d.AITemperature, &d.AIMaxTokens, &aiPrompt,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	d.Address = derefStr(address)
	d.Phone = derefStr(phone)
	d.Website = derefStr(website)
	d.ScrapeWebhookSecret = derefStr(webhookSecret)
	d.ExtensionSigningKey = derefStr(signingKey)
	d.GHLLocationID = derefStr(ghlLoc)
	d.GHLAPIKey = derefStr(ghlKey)
	d.MessengerPageID = derefStr(pageID)
	d.ScrapeSourceURL = derefStr(sourceURL)
	d.AIModel = derefStr(aiModel)
	d.AIReplyPrompt = derefStr(aiPrompt)
	return &d, nil
}
