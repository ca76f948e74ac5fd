package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/openautogroup/lotview/internal/store"
)

// PGVehicleStore implements store.VehicleStore backed by Postgres.
type PGVehicleStore struct {
	db *sql.DB
}

func NewPGVehicleStore(db *sql.DB) *PGVehicleStore {
	return &PGVehicleStore{db: db}
}

const vehicleCols = `id, dealership_id, year, make, model, trim, type, price, odometer,
	vin, stock_number, location, description, badges, images, local_images,
	carfax_url, dealer_vdp_url, manual_headline, manual_subheadline, manual_description,
	is_manually_edited, social_templates, last_scraped_at, marketplace_posted_at,
	created_at, updated_at`

func (s *PGVehicleStore) Create(ctx context.Context, v *store.Vehicle) error {
	now := time.Now()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO vehicles (dealership_id, year, make, model, trim, type, price, odometer,
			vin, stock_number, location, description, badges, images, local_images,
			carfax_url, dealer_vdp_url, manual_headline, manual_subheadline, manual_description,
			is_manually_edited, social_templates, last_scraped_at, marketplace_posted_at,
			created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$25)
		 RETURNING id`,
		v.DealershipID, v.Year, v.Make, v.Model, nilStr(v.Trim), nilStr(v.Type), v.Price, v.Odometer,
		nilStr(strings.ToUpper(v.VIN)), nilStr(v.StockNumber), nilStr(v.Location), nilStr(v.Description),
		jsonArray(v.Badges), jsonArray(v.Images), jsonArray(v.LocalImages),
		nilStr(v.CarfaxURL), nilStr(v.DealerVDPURL),
		nilStr(v.ManualHeadline), nilStr(v.ManualSubheadline), nilStr(v.ManualDescription),
		v.IsManuallyEdited, nilStr(v.SocialTemplates), v.LastScrapedAt, v.MarketplacePostedAt, now,
	).Scan(&v.ID)
	if err != nil {
		return mapErr(err)
	}
	v.CreatedAt, v.UpdatedAt = now, now
	return nil
}

func (s *PGVehicleStore) Get(ctx context.Context, id, dealershipID int64) (*store.Vehicle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+vehicleCols+` FROM vehicles WHERE id = $1 AND dealership_id = $2`,
		id, dealershipID)
	return scanVehicle(row)
}

func (s *PGVehicleStore) GetByVIN(ctx context.Context, vin string, dealershipID int64) (*store.Vehicle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+vehicleCols+` FROM vehicles WHERE vin = $1 AND dealership_id = $2`,
		strings.ToUpper(vin), dealershipID)
	return scanVehicle(row)
}

func (s *PGVehicleStore) List(ctx context.Context, dealershipID int64, opts store.VehicleListOpts) (*store.VehicleList, error) {
	limit := opts.Limit
	offset := 0
	if opts.Page > 0 {
		// Paged requests cap the limit at 100.
		if limit <= 0 || limit > 100 {
			limit = 100
		}
		offset = (opts.Page - 1) * limit
	} else if limit <= 0 || limit > 10000 {
		limit = 10000
	}

	where := "dealership_id = $1"
	args := []any{dealershipID}
	if opts.Search != "" {
		where += " AND (make ILIKE $2 OR model ILIKE $2 OR vin ILIKE $2 OR stock_number ILIKE $2)"
		args = append(args, "%"+opts.Search+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM vehicles WHERE "+where, args...).Scan(&total); err != nil {
		return nil, mapErr(err)
	}

	args = append(args, limit, offset)
	q := fmt.Sprintf(`SELECT %s FROM vehicles WHERE %s ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`,
		vehicleCols, where, len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	items := []store.Vehicle{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *v)
	}
	return &store.VehicleList{Items: items, Total: total}, rows.Err()
}

func (s *PGVehicleStore) Count(ctx context.Context, dealershipID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vehicles WHERE dealership_id = $1`, dealershipID).Scan(&n)
	return n, mapErr(err)
}

func (s *PGVehicleStore) Update(ctx context.Context, v *store.Vehicle) error {
	v.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE vehicles SET year=$1, make=$2, model=$3, trim=$4, type=$5, price=$6, odometer=$7,
			vin=$8, stock_number=$9, location=$10, description=$11, badges=$12, images=$13, local_images=$14,
			carfax_url=$15, dealer_vdp_url=$16, manual_headline=$17, manual_subheadline=$18,
			manual_description=$19, is_manually_edited=$20, social_templates=$21,
			last_scraped_at=$22, marketplace_posted_at=$23, updated_at=$24
		 WHERE id=$25 AND dealership_id=$26`,
		v.Year, v.Make, v.Model, nilStr(v.Trim), nilStr(v.Type), v.Price, v.Odometer,
		nilStr(strings.ToUpper(v.VIN)), nilStr(v.StockNumber), nilStr(v.Location), nilStr(v.Description),
		jsonArray(v.Badges), jsonArray(v.Images), jsonArray(v.LocalImages),
		nilStr(v.CarfaxURL), nilStr(v.DealerVDPURL),
		nilStr(v.ManualHeadline), nilStr(v.ManualSubheadline), nilStr(v.ManualDescription),
		v.IsManuallyEdited, nilStr(v.SocialTemplates),
		v.LastScrapedAt, v.MarketplacePostedAt, v.UpdatedAt, v.ID, v.DealershipID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGVehicleStore) Delete(ctx context.Context, id, dealershipID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM vehicles WHERE id = $1 AND dealership_id = $2`, id, dealershipID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGVehicleStore) DeleteByVIN(ctx context.Context, vin string, dealershipID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM vehicles WHERE vin = $1 AND dealership_id = $2`,
		strings.ToUpper(vin), dealershipID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGVehicleStore) VINsNotIn(ctx context.Context, keep []string, dealershipID int64) ([]string, error) {
	if len(keep) == 0 {
		return nil, store.ErrInvalid
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT vin FROM vehicles
		 WHERE dealership_id = $1 AND vin IS NOT NULL AND NOT (vin = ANY($2))`,
		dealershipID, upperAll(keep))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var vins []string
	for rows.Next() {
		var vin string
		if err := rows.Scan(&vin); err != nil {
			return nil, err
		}
		vins = append(vins, vin)
	}
	return vins, rows.Err()
}

func (s *PGVehicleStore) DeleteByVINNotIn(ctx context.Context, keep []string, dealershipID int64) (*store.BulkDeleteResult, error) {
	// Empty keep would wipe the whole inventory; the API layer gates this
	// too, but the store refuses unconditionally.
	if len(keep) == 0 {
		return nil, store.ErrInvalid
	}
	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM vehicles
		 WHERE dealership_id = $1 AND vin IS NOT NULL AND NOT (vin = ANY($2))
		 RETURNING vin`,
		dealershipID, upperAll(keep))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	result := &store.BulkDeleteResult{DeletedVINs: []string{}}
	for rows.Next() {
		var vin string
		if err := rows.Scan(&vin); err != nil {
			return nil, err
		}
		result.DeletedVINs = append(result.DeletedVINs, vin)
	}
	result.DeletedCount = len(result.DeletedVINs)
	return result, rows.Err()
}

func upperAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToUpper(s)
	}
	return out
}

func scanVehicle(row rowScanner) (*store.Vehicle, error) {
	var v store.Vehicle
	var trim, typ, vin, stock, location, desc, carfax, vdp *string
	var mh, msh, md, social *string
	var badges, images, localImages []byte
	err := row.Scan(&v.ID, &v.DealershipID, &v.Year, &v.Make, &v.Model, &trim, &typ, &v.Price, &v.Odometer,
		&vin, &stock, &location, &desc, &badges, &images, &localImages,
		&carfax, &vdp, &mh, &msh, &md,
		&v.IsManuallyEdited, &social, &v.LastScrapedAt, &v.MarketplacePostedAt,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	v.Trim = derefStr(trim)
	v.Type = derefStr(typ)
	v.VIN = derefStr(vin)
	v.StockNumber = derefStr(stock)
	v.Location = derefStr(location)
	v.Description = derefStr(desc)
	v.CarfaxURL = derefStr(carfax)
	v.DealerVDPURL = derefStr(vdp)
	v.ManualHeadline = derefStr(mh)
	v.ManualSubheadline = derefStr(msh)
	v.ManualDescription = derefStr(md)
	v.SocialTemplates = derefStr(social)
	scanJSONArray(badges, &v.Badges)
	scanJSONArray(images, &v.Images)
	scanJSONArray(localImages, &v.LocalImages)
	if v.Images == nil {
		v.Images = []string{}
	}
	return &v, nil
}
