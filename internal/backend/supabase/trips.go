package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pkordes/trip-tracker/internal/domain"
)

const tripsPath = "/rest/v1/trips"

// tripRow is a trips row as PostgREST returns it.
type tripRow struct {
	ID          flexID `json:"id"`
	UserID      string `json:"user_id"`
	Start       string `json:"start"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
	Note        string `json:"note"`
	Transport   string `json:"transport"`
	Done        bool   `json:"done"`
}

func (r tripRow) trip() domain.Trip {
	return domain.Trip{
		ID:          string(r.ID),
		UserID:      r.UserID,
		Start:       r.Start,
		Destination: r.Destination,
		Date:        r.Date,
		Note:        r.Note,
		Transport:   domain.Transport(r.Transport),
		Done:        r.Done,
	}
}

// insertRow omits the id so the service assigns it.
type insertRow struct {
	UserID      string `json:"user_id"`
	Start       string `json:"start"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
	Note        string `json:"note"`
	Transport   string `json:"transport"`
	Done        bool   `json:"done"`
}

func byID(id string) url.Values {
	return url.Values{"id": {"eq." + id}}
}

func (t clientTrips) SelectAll(ctx context.Context) ([]domain.Trip, error) {
	token, err := t.c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := t.c.svc.doRequest(ctx, request{
		method: http.MethodGet,
		path:   tripsPath,
		query:  url.Values{"select": {"*"}},
		token:  token,
	})
	if err != nil {
		return nil, err
	}

	var rows []tripRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("supabase: failed to parse trips: %w", err)
	}
	trips := make([]domain.Trip, 0, len(rows))
	for _, r := range rows {
		trips = append(trips, r.trip())
	}
	return trips, nil
}

func (t clientTrips) Insert(ctx context.Context, trip domain.Trip) error {
	token, err := t.c.accessToken(ctx)
	if err != nil {
		return err
	}
	_, err = t.c.svc.doRequest(ctx, request{
		method: http.MethodPost,
		path:   tripsPath,
		token:  token,
		body: []insertRow{{
			UserID:      trip.UserID,
			Start:       trip.Start,
			Destination: trip.Destination,
			Date:        trip.Date,
			Note:        trip.Note,
			Transport:   string(trip.Transport),
			Done:        trip.Done,
		}},
		headers: map[string]string{"Prefer": "return=minimal"},
	})
	return err
}

func (t clientTrips) Update(ctx context.Context, id string, patch domain.TripPatch) error {
	token, err := t.c.accessToken(ctx)
	if err != nil {
		return err
	}
	_, err = t.c.svc.doRequest(ctx, request{
		method:  http.MethodPatch,
		path:    tripsPath,
		query:   byID(id),
		token:   token,
		body:    patch,
		headers: map[string]string{"Prefer": "return=minimal"},
	})
	return err
}

func (t clientTrips) Delete(ctx context.Context, id string) error {
	token, err := t.c.accessToken(ctx)
	if err != nil {
		return err
	}
	_, err = t.c.svc.doRequest(ctx, request{
		method: http.MethodDelete,
		path:   tripsPath,
		query:  byID(id),
		token:  token,
	})
	return err
}
