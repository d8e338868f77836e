package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"realestate-scraper/models"
)

// CSVWriter exports parsed listing records to a CSV file for quick
// inspection. Nil numerics render as empty cells, never as zero.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

var csvHeader = []string{
	"listing_id", "platform_id", "batch_id", "source_url",
	"street", "unit", "city", "state", "postal_code",
	"beds", "baths", "interior_area_sqft", "year_built",
	"status", "list_price", "price_per_sqft", "days_on_market",
	"photos", "possible_duplicate", "scraped_at",
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// Write appends the given records.
func (c *CSVWriter) Write(records []*models.ListingRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range records {
		row := []string{
			r.ListingID,
			r.PlatformID,
			r.BatchID,
			r.SourceURL,
			r.Address.Street,
			r.Address.Unit,
			r.Address.City,
			r.Address.State,
			r.Address.PostalCode,
			fmtFloat(r.Beds),
			fmtFloat(r.Baths),
			fmtInt(r.InteriorAreaSqft),
			fmtInt(r.YearBuilt),
			string(r.Status),
			fmtFloat(r.ListPrice),
			fmtFloat(r.PricePerSqft),
			fmtInt(r.DaysOnMarket),
			strconv.Itoa(len(r.Photos)),
			strconv.FormatBool(r.PossibleDuplicate),
			r.ScrapedAt.Format(time.RFC3339),
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

func fmtFloat(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func fmtInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}
