package services

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"realestate-scraper/models"
	"realestate-scraper/schema"
)

// Tolerances for the fuzzy duplicate match: exact fingerprint equality is a
// hard hit; an address-only match counts when beds/baths/area fall inside
// these bounds (cross-platform rounding and unit drift).
const (
	bedsTolerance  = 1.0
	bathsTolerance = 1.0
	areaTolerance  = 0.10
	areaBucketSqft = 50
)

// Fingerprint is the normalized composite identity of a listing.
type Fingerprint struct {
	AddressKey string
	Beds       float64 // -1 when unknown
	Baths      float64 // -1 when unknown
	AreaBucket int     // -1 when unknown
}

// Key renders the fingerprint as a comparable string.
func (f Fingerprint) Key() string {
	return fmt.Sprintf("%s|%.1f|%.1f|%d", f.AddressKey, f.Beds, f.Baths, f.AreaBucket)
}

// Backlink asks the orchestrator to add ToID into FromID's candidate set
// out-of-band, keeping duplicate links eventually symmetric. FromBatch says
// which batch holds FromID's artifact; a re-scrape in a later batch links
// back into the earlier batch's record.
type Backlink struct {
	FromID    string
	FromBatch string
	ToID      string
}

type indexEntry struct {
	id      string
	batchID string
	fp      Fingerprint
}

// Deduplicator flags probable duplicate listings across platforms and
// batches. It only ever mutates the record currently being annotated;
// links back to previously seen records are returned for the orchestrator
// to apply.
type Deduplicator struct {
	mu      sync.Mutex
	entries []indexEntry
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// ComputeFingerprint normalizes address (lower-cased, punctuation stripped,
// whitespace collapsed), beds, baths and bucketed interior area.
func (d *Deduplicator) ComputeFingerprint(rec *models.ListingRecord) Fingerprint {
	fp := Fingerprint{
		AddressKey: addressKey(rec.Address),
		Beds:       -1,
		Baths:      -1,
		AreaBucket: -1,
	}
	if rec.Beds != nil {
		fp.Beds = *rec.Beds
	}
	if rec.Baths != nil {
		fp.Baths = *rec.Baths
	}
	if rec.InteriorAreaSqft != nil {
		fp.AreaBucket = (*rec.InteriorAreaSqft + areaBucketSqft/2) / areaBucketSqft * areaBucketSqft
	}
	return fp
}

// Annotate checks the record against everything seen so far, fills its
// duplicate flags, registers it in the index, and returns the backlink ops
// for earlier records. The record's own id never appears in its candidates.
func (d *Deduplicator) Annotate(rec *models.ListingRecord) []Backlink {
	fp := d.ComputeFingerprint(rec)

	d.mu.Lock()
	defer d.mu.Unlock()

	var backlinks []Backlink
	for _, e := range d.entries {
		if e.id == rec.ListingID {
			continue
		}
		if !matches(fp, e.fp) {
			continue
		}
		if containsID(rec.DuplicateCandidates, e.id) {
			continue
		}
		rec.DuplicateCandidates = append(rec.DuplicateCandidates, e.id)
		backlinks = append(backlinks, Backlink{FromID: e.id, FromBatch: e.batchID, ToID: rec.ListingID})
	}
	rec.PossibleDuplicate = len(rec.DuplicateCandidates) > 0

	d.entries = append(d.entries, indexEntry{id: rec.ListingID, batchID: rec.BatchID, fp: fp})
	return backlinks
}

// matches implements the duplicate rule: exact fingerprint equality, or an
// address match with beds/baths/area inside tolerance.
func matches(a, b Fingerprint) bool {
	if a.AddressKey == "" || b.AddressKey == "" {
		return false
	}
	if a.Key() == b.Key() {
		return true
	}
	if a.AddressKey != b.AddressKey {
		return false
	}
	if a.Beds >= 0 && b.Beds >= 0 && math.Abs(a.Beds-b.Beds) > bedsTolerance {
		return false
	}
	if a.Baths >= 0 && b.Baths >= 0 && math.Abs(a.Baths-b.Baths) > bathsTolerance {
		return false
	}
	if a.AreaBucket >= 0 && b.AreaBucket >= 0 {
		lo, hi := float64(a.AreaBucket), float64(b.AreaBucket)
		if lo > hi {
			lo, hi = hi, lo
		}
		if hi > 0 && (hi-lo)/hi > areaTolerance {
			return false
		}
	}
	return true
}

var addressPunct = strings.NewReplacer(",", " ", ".", " ", "#", " ", "-", " ")

func addressKey(addr models.Address) string {
	joined := strings.Join([]string{addr.Street, addr.Unit, addr.City, addr.State, addr.PostalCode}, " ")
	return schema.NormalizeText(strings.ToLower(addressPunct.Replace(joined)))
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
