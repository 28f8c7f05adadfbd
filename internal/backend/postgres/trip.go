// Package postgres implements the backend contract on a self-hosted Postgres
// database. Each resource has its own file with an interface and a pgx
// implementation; client.go adapts them to backend.Client.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/trip-tracker/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Integration tests pass a transaction that is rolled back after each test.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TripRepo defines the persistence operations for trips.
// Every operation except Create is scoped to the owning user; a trip that
// exists but belongs to someone else is reported as domain.ErrNotFound.
type TripRepo interface {
	// Create inserts a new trip and returns the persisted record.
	Create(ctx context.Context, trip domain.Trip) (domain.Trip, error)

	// List returns all trips of userID in insertion order.
	List(ctx context.Context, userID uuid.UUID) ([]domain.Trip, error)

	// Update applies the non-nil fields of patch and returns the updated record.
	Update(ctx context.Context, userID, id uuid.UUID, patch domain.TripPatch) (domain.Trip, error)

	// Delete removes a trip.
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

type pgTripRepo struct {
	db db
}

// NewTripRepo constructs a TripRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewTripRepo(db db) TripRepo {
	return &pgTripRepo{db: db}
}

const tripColumns = `id, user_id, start, destination, date, note, transport, done`

// Create inserts a new trip row and returns the full persisted record.
func (r *pgTripRepo) Create(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	userID, err := uuid.Parse(trip.UserID)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("postgres.TripRepo.Create: user id: %w", err)
	}

	const q = `
		INSERT INTO trips (user_id, start, destination, date, note, transport, done)
		VALUES (@user_id, @start, @destination, @date::date, @note, @transport, @done)
		RETURNING ` + tripColumns

	args := pgx.NamedArgs{
		"user_id":     userID,
		"start":       trip.Start,
		"destination": trip.Destination,
		"date":        trip.Date,
		"note":        trip.Note,
		"transport":   string(trip.Transport),
		"done":        trip.Done,
	}

	result, err := scanTrip(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("postgres.TripRepo.Create: %w", err)
	}
	return result, nil
}

// List returns every trip of the user. Ordering for display is the view's job.
func (r *pgTripRepo) List(ctx context.Context, userID uuid.UUID) ([]domain.Trip, error) {
	const q = `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE user_id = @user_id
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("postgres.TripRepo.List: %w", err)
	}
	defer rows.Close()

	trips := []domain.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres.TripRepo.List: scan: %w", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres.TripRepo.List: rows: %w", err)
	}
	return trips, nil
}

// Update applies a partial update. NULL parameters keep the stored value.
func (r *pgTripRepo) Update(ctx context.Context, userID, id uuid.UUID, patch domain.TripPatch) (domain.Trip, error) {
	const q = `
		UPDATE trips
		SET start       = COALESCE(@start, start),
		    destination = COALESCE(@destination, destination),
		    date        = COALESCE(@date::date, date),
		    note        = COALESCE(@note, note),
		    transport   = COALESCE(@transport, transport),
		    done        = COALESCE(@done, done),
		    updated_at  = now()
		WHERE id = @id AND user_id = @user_id
		RETURNING ` + tripColumns

	var transport *string
	if patch.Transport != nil {
		s := string(*patch.Transport)
		transport = &s
	}

	args := pgx.NamedArgs{
		"id":          id,
		"user_id":     userID,
		"start":       patch.Start,
		"destination": patch.Destination,
		"date":        patch.Date,
		"note":        patch.Note,
		"transport":   transport,
		"done":        patch.Done,
	}

	result, err := scanTrip(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("postgres.TripRepo.Update: %w", err)
	}
	return result, nil
}

// Delete removes a trip owned by userID.
func (r *pgTripRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	const q = `DELETE FROM trips WHERE id = @id AND user_id = @user_id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "user_id": userID})
	if err != nil {
		return fmt.Errorf("postgres.TripRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres.TripRepo.Delete: %w", domain.ErrNotFound)
	}
	return nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanTrip maps a single row into a domain.Trip, formatting the date column
// as a calendar date.
func scanTrip(s scanner) (domain.Trip, error) {
	var (
		t         domain.Trip
		id        pgtype.UUID
		userID    pgtype.UUID
		date      pgtype.Date
		transport string
	)

	err := s.Scan(&id, &userID, &t.Start, &t.Destination, &date, &t.Note, &transport, &t.Done)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trip{}, domain.ErrNotFound
		}
		return domain.Trip{}, err
	}

	t.ID = uuid.UUID(id.Bytes).String()
	t.UserID = uuid.UUID(userID.Bytes).String()
	t.Transport = domain.Transport(transport)
	if date.Valid {
		t.Date = date.Time.Format(openapi_types.DateFormat)
	}
	return t, nil
}
