package model

import "time"

// AdvertStatus represents the lifecycle state of a persisted advert.
type AdvertStatus string

const (
	AdvertStatusActive  AdvertStatus = "active"
	AdvertStatusExpired AdvertStatus = "expired"
)

// Advert is a persisted vehicle advertisement scraped from the listings page.
type Advert struct {
	ID          int64        `json:"id"`
	URL         string       `json:"url"`       // relative detail-page path
	ImageURL    string       `json:"image_url"` // thumbnail
	Description string       `json:"description"`
	Type        string       `json:"type"` // location/category label
	Year        string       `json:"year"` // free text on the site, not strictly numeric
	Price       string       `json:"price"`
	Status      AdvertStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiredAt   *time.Time   `json:"expired_at,omitempty"`
}

// Candidate is a row-derived advert extracted during one parse pass,
// not yet persisted. Its identity is the natural key
// (Description, Type, Year) — the site exposes no stable listing id
// in the scraped view.
type Candidate struct {
	URL         string `json:"url"`
	ImageURL    string `json:"image_url"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Year        string `json:"year"`
	Price       string `json:"price"`
}

// NaturalKey returns the composite identity used for deduplication.
func (c Candidate) NaturalKey() (description, typ, year string) {
	return c.Description, c.Type, c.Year
}
