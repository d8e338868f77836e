package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"realestate-scraper/models"
)

// PostgresWriter persists parsed listing records to PostgreSQL as a
// secondary sink next to the filesystem artifacts.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection, runs schema migrations, and returns
// a ready-to-use writer.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			listing_id         VARCHAR(32)  NOT NULL,
			batch_id           VARCHAR(64)  NOT NULL,
			platform_id        VARCHAR(50)  NOT NULL,
			external_id        VARCHAR(64),
			source_url         TEXT         NOT NULL,
			scraped_at         TIMESTAMPTZ  NOT NULL,
			street             TEXT,
			unit               TEXT,
			city               TEXT,
			state              TEXT,
			postal_code        TEXT,
			beds               NUMERIC(4,1),
			baths              NUMERIC(4,1),
			interior_area_sqft INTEGER,
			lot_sqft           INTEGER,
			year_built         INTEGER,
			status             VARCHAR(20)  NOT NULL DEFAULT 'unknown',
			list_date          DATE,
			days_on_market     INTEGER,
			list_price         NUMERIC(14,2),
			price_per_sqft     NUMERIC(10,2),
			description        TEXT,
			views              INTEGER,
			saves              INTEGER,
			share_count        INTEGER,
			possible_duplicate BOOLEAN      NOT NULL DEFAULT FALSE,
			PRIMARY KEY (listing_id, batch_id)
		);

		CREATE INDEX IF NOT EXISTS idx_listings_platform ON listings(platform_id);
		CREATE INDEX IF NOT EXISTS idx_listings_price    ON listings(list_price);
		CREATE INDEX IF NOT EXISTS idx_listings_zip      ON listings(postal_code);
		CREATE INDEX IF NOT EXISTS idx_listings_status   ON listings(status);
	`)
	return err
}

// Write batch-inserts the records; rows already present for the same
// (listing_id, batch_id) are left untouched, keeping re-runs idempotent.
func (pw *PostgresWriter) Write(records []*models.ListingRecord) error {
	if len(records) == 0 {
		return nil
	}

	const batchSize = 50
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := pw.insertBatch(records[i:end]); err != nil {
			return err
		}
	}
	return nil
}

const listingCols = 26

func (pw *PostgresWriter) insertBatch(batch []*models.ListingRecord) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*listingCols)

	for idx, r := range batch {
		base := idx * listingCols
		ph := make([]string, listingCols)
		for c := 0; c < listingCols; c++ {
			ph[c] = fmt.Sprintf("$%d", base+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
		valueArgs = append(valueArgs,
			r.ListingID, r.BatchID, r.PlatformID, nullStr(r.ExternalPropertyID),
			r.SourceURL, r.ScrapedAt,
			nullStr(r.Address.Street), nullStr(r.Address.Unit), nullStr(r.Address.City),
			nullStr(r.Address.State), nullStr(r.Address.PostalCode),
			nullFloat(r.Beds), nullFloat(r.Baths), nullInt(r.InteriorAreaSqft),
			nullInt(r.LotSqft), nullInt(r.YearBuilt),
			string(r.Status), nullTime(r.ListDate), nullInt(r.DaysOnMarket),
			nullFloat(r.ListPrice), nullFloat(r.PricePerSqft),
			nullStr(r.Description), nullInt(r.Views), nullInt(r.Saves), nullInt(r.ShareCount),
			r.PossibleDuplicate,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO listings (
			listing_id, batch_id, platform_id, external_id, source_url, scraped_at,
			street, unit, city, state, postal_code,
			beds, baths, interior_area_sqft, lot_sqft, year_built,
			status, list_date, days_on_market, list_price, price_per_sqft,
			description, views, saves, share_count, possible_duplicate
		)
		VALUES %s
		ON CONFLICT (listing_id, batch_id) DO NOTHING
	`, strings.Join(valueStrings, ","))

	_, err := pw.db.Exec(query, valueArgs...)
	return err
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}
