// internal/domain/feed/model.go

package feed

import (
	"context"
	"time"

	"regionalert/internal/domain/geo"
)

// Entry is one post from an official account
type Entry struct {
	ID       string
	Text     string
	PostedAt time.Time
}

// Account is an official emergency service account the poller follows
type Account struct {
	Organization string  `mapstructure:"organization"`
	AccountID    string  `mapstructure:"account_id"`
	Latitude     float64 `mapstructure:"latitude"`
	Longitude    float64 `mapstructure:"longitude"`
	RadiusKm     float64 `mapstructure:"radius_km"`
	ContactInfo  string  `mapstructure:"contact_info"`
}

// Coordinates returns the default alert centre for the account's posts.
func (a Account) Coordinates() geo.Coordinate {
	return geo.Coordinate{Latitude: a.Latitude, Longitude: a.Longitude}
}

// TimelineSource lists posts newer than sinceID for an account. An empty
// sinceID returns the most recent posts.
type TimelineSource interface {
	Timeline(ctx context.Context, accountID, sinceID string) ([]Entry, error)
}

// NewerID reports whether post id a is newer than b. Ids are decimal
// snowflakes, so a longer id is newer.
func NewerID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}
