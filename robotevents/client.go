// Package robotevents fetches events, teams and matches from the RobotEvents
// API v2. The Client talks HTTP; Cached layers a Redis read-through cache on
// top of any Provider.
package robotevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robostem/matchjump/backend/event"
	"github.com/robostem/matchjump/backend/streamsync"
)

const defaultBaseURL = "https://www.robotevents.com/api/v2"

// ErrUnauthorized means the API token is missing or rejected.
var ErrUnauthorized = fmt.Errorf("robotevents token rejected: %w", streamsync.ErrUnavailable)

// Provider is the event-results collaborator.
type Provider interface {
	EventBySKU(ctx context.Context, sku string) (*event.Event, error)
	TeamByNumber(ctx context.Context, number string) (event.Team, error)
	TeamMatches(ctx context.Context, ev *event.Event, teamID int) ([]event.Match, error)
}

// Client is an HTTP Provider.
type Client struct {
	HTTPClient *http.Client
	Token      string
	BaseURL    string
	// PerPage is the page size for list endpoints (max 250).
	PerPage int
}

var _ Provider = (*Client)(nil)

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return defaultBaseURL
}

func (c *Client) perPage() int {
	if c.PerPage <= 0 || c.PerPage > 250 {
		return 250
	}
	return c.PerPage
}

type meta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
}

// get decodes one page of path+query into dst.
func (c *Client) get(ctx context.Context, path string, q url.Values, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return fmt.Errorf("robotevents %s: %w: %w", path, streamsync.ErrUnavailable, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("robotevents %s: %w", path, event.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("robotevents %s: %s: %s: %w", path, resp.Status, strings.TrimSpace(string(b)), streamsync.ErrUnavailable)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode robotevents %s: %w", path, err)
	}
	return nil
}

// getAll walks every page of a list endpoint, appending into out.
func getAll[T any](ctx context.Context, c *Client, path string, q url.Values) ([]T, error) {
	var out []T
	for page := 1; ; page++ {
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(c.perPage()))
		var body struct {
			Data []T  `json:"data"`
			Meta meta `json:"meta"`
		}
		if err := c.get(ctx, path, q, &body); err != nil {
			return nil, err
		}
		out = append(out, body.Data...)
		if body.Meta.LastPage <= page || len(body.Data) == 0 {
			return out, nil
		}
	}
}

type apiEvent struct {
	ID       int    `json:"id"`
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Location struct {
		Venue   string `json:"venue"`
		City    string `json:"city"`
		Region  string `json:"region"`
		Country string `json:"country"`
	} `json:"location"`
	Divisions []apiDivision `json:"divisions"`
}

type apiDivision struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// EventBySKU resolves an event SKU.
func (c *Client) EventBySKU(ctx context.Context, sku string) (*event.Event, error) {
	q := url.Values{}
	q.Add("sku[]", sku)
	events, err := getAll[apiEvent](ctx, c, "/events", q)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("event %s: %w", sku, event.ErrNotFound)
	}
	return toEvent(events[0])
}

func toEvent(a apiEvent) (*event.Event, error) {
	start, err := time.Parse(time.RFC3339, a.Start)
	if err != nil {
		return nil, fmt.Errorf("event %s start %q: %w", a.SKU, a.Start, err)
	}
	end, err := time.Parse(time.RFC3339, a.End)
	if err != nil {
		return nil, fmt.Errorf("event %s end %q: %w", a.SKU, a.End, err)
	}
	var parts []string
	for _, p := range []string{a.Location.Venue, a.Location.City, a.Location.Region, a.Location.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	divs := append([]apiDivision(nil), a.Divisions...)
	sort.SliceStable(divs, func(i, j int) bool { return divs[i].Order < divs[j].Order })
	ev := &event.Event{
		ID:       a.ID,
		SKU:      a.SKU,
		Name:     a.Name,
		Start:    start,
		End:      end,
		Location: strings.Join(parts, ", "),
	}
	for _, d := range divs {
		ev.Divisions = append(ev.Divisions, event.Division{ID: d.ID, Name: d.Name})
	}
	return ev, nil
}

// TeamByNumber looks up a team by its number, e.g. "1234A".
func (c *Client) TeamByNumber(ctx context.Context, number string) (event.Team, error) {
	n, err := event.NormalizeTeamNumber(number)
	if err != nil {
		return event.Team{}, err
	}
	q := url.Values{}
	q.Add("number[]", n)
	type apiTeam struct {
		ID           int    `json:"id"`
		Number       string `json:"number"`
		TeamName     string `json:"team_name"`
		Organization string `json:"organization"`
	}
	teams, err := getAll[apiTeam](ctx, c, "/teams", q)
	if err != nil {
		return event.Team{}, err
	}
	for _, t := range teams {
		if strings.EqualFold(t.Number, n) {
			return event.Team{ID: t.ID, Number: t.Number, Name: t.TeamName, Organization: t.Organization}, nil
		}
	}
	return event.Team{}, fmt.Errorf("team %s: %w", n, event.ErrNotFound)
}

type apiMatch struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Started   *string `json:"started"`
	Alliances []struct {
		Color string `json:"color"`
		Teams []struct {
			Team struct {
				ID   int    `json:"id"`
				Name string `json:"name"`
			} `json:"team"`
		} `json:"teams"`
	} `json:"alliances"`
}

// TeamMatches lists a team's matches across every division of ev, played
// matches first in start order.
func (c *Client) TeamMatches(ctx context.Context, ev *event.Event, teamID int) ([]event.Match, error) {
	divs := ev.Divisions
	if len(divs) == 0 {
		divs = []event.Division{{ID: 1}}
	}
	var out []event.Match
	for _, d := range divs {
		q := url.Values{}
		q.Add("team[]", strconv.Itoa(teamID))
		path := fmt.Sprintf("/events/%d/divisions/%d/matches", ev.ID, d.ID)
		ms, err := getAll[apiMatch](ctx, c, path, q)
		if err != nil {
			if errors.Is(err, event.ErrNotFound) {
				continue
			}
			return nil, err
		}
		for _, m := range ms {
			out = append(out, toMatch(m, d.ID, ev.MultiDivision()))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("matches for team %d at %s: %w", teamID, ev.SKU, event.ErrNotFound)
	}
	SortMatches(out)
	return out, nil
}

func toMatch(a apiMatch, divisionID int, multi bool) event.Match {
	m := event.Match{ID: a.ID, Name: a.Name}
	if a.Started != nil && *a.Started != "" {
		if t, err := time.Parse(time.RFC3339, *a.Started); err == nil {
			m.Start = &t
		}
	}
	if multi {
		id := divisionID
		m.DivisionID = &id
	}
	for _, al := range a.Alliances {
		var teams []string
		for _, t := range al.Teams {
			teams = append(teams, t.Team.Name)
		}
		m.Alliances = append(m.Alliances, event.Alliance{Color: event.Color(strings.ToLower(al.Color)), Teams: teams})
	}
	return m
}

// SortMatches orders played matches by start, then unplayed ones by id.
func SortMatches(ms []event.Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		switch {
		case a.Played() && b.Played():
			return a.Start.Before(*b.Start)
		case a.Played() != b.Played():
			return a.Played()
		}
		return a.ID < b.ID
	})
}
