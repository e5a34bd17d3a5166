// Package event models competition events, divisions, teams and matches as
// returned by the event provider, and partitions an event's date range into
// day slots. Everything here is read-only once fetched.
package event

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrInvalidSKU is returned when no event SKU can be found in user input.
	ErrInvalidSKU = errors.New("invalid event sku")
	// ErrEmptyTeamNumber is returned for a blank team number search.
	ErrEmptyTeamNumber = errors.New("team number is empty")
	// ErrNotFound marks unknown events, unknown teams and empty match lists.
	ErrNotFound = errors.New("not found")
)

var skuPattern = regexp.MustCompile(`RE-[A-Z0-9]+-\d{2}-\d{4}`)

// Division is a parallel competition track inside one event.
type Division struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Event is a (possibly multi-day) competition.
type Event struct {
	Start     time.Time  `json:"start"`
	End       time.Time  `json:"end"`
	SKU       string     `json:"sku"`
	Name      string     `json:"name"`
	Location  string     `json:"location,omitempty"`
	Divisions []Division `json:"divisions,omitempty"`
	ID        int        `json:"id"`
}

// MultiDivision reports whether matches must be told apart by division.
func (e *Event) MultiDivision() bool { return e != nil && len(e.Divisions) > 1 }

// Division returns the division with the given id.
func (e *Event) Division(id int) (Division, bool) {
	for _, d := range e.Divisions {
		if d.ID == id {
			return d, true
		}
	}
	return Division{}, false
}

// Team is a registered competitor.
type Team struct {
	Number       string `json:"number"`
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
	ID           int    `json:"id"`
}

// Color identifies an alliance side.
type Color string

const (
	Red  Color = "red"
	Blue Color = "blue"
)

// Alliance is one side of a match.
type Alliance struct {
	Color Color    `json:"color"`
	Teams []string `json:"teams"`
}

// Match is a single contest. A nil Start means the match has not been played.
type Match struct {
	Start      *time.Time `json:"start"`
	DivisionID *int       `json:"divisionId,omitempty"`
	Name       string     `json:"name"`
	Alliances  []Alliance `json:"alliances"`
	ID         int        `json:"id"`
}

// Played reports whether the match has a real-world start instant.
func (m Match) Played() bool { return m.Start != nil }

// ExtractSKU pulls an event SKU out of a pasted URL or raw SKU string.
func ExtractSKU(raw string) (string, error) {
	sku := skuPattern.FindString(strings.ToUpper(strings.TrimSpace(raw)))
	if sku == "" {
		return "", fmt.Errorf("%q: %w", raw, ErrInvalidSKU)
	}
	return sku, nil
}

// NormalizeTeamNumber trims a team number search and rejects blanks.
func NormalizeTeamNumber(raw string) (string, error) {
	n := strings.ToUpper(strings.TrimSpace(raw))
	if n == "" {
		return "", ErrEmptyTeamNumber
	}
	return n, nil
}
