package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/trip-tracker/internal/domain"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// Account is a user together with the stored password hash.
type Account struct {
	User         domain.User
	PasswordHash string
}

// UserRepo defines the persistence operations for accounts.
type UserRepo interface {
	// Create inserts a new account. Returns domain.ErrConflict when the
	// e-mail address is already registered (case-insensitive).
	Create(ctx context.Context, email, passwordHash string) (domain.User, error)

	// GetByEmail looks an account up by e-mail address (case-insensitive).
	// Returns domain.ErrNotFound if there is none.
	GetByEmail(ctx context.Context, email string) (Account, error)
}

type pgUserRepo struct {
	db db
}

// NewUserRepo constructs a UserRepo backed by the provided db connection.
func NewUserRepo(db db) UserRepo {
	return &pgUserRepo{db: db}
}

// Create inserts a new account row.
func (r *pgUserRepo) Create(ctx context.Context, email, passwordHash string) (domain.User, error) {
	const q = `
		INSERT INTO users (email, password_hash)
		VALUES (@email, @password_hash)
		RETURNING id, email`

	var (
		id pgtype.UUID
		u  domain.User
	)
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"email": email, "password_hash": passwordHash}).Scan(&id, &u.Email)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.User{}, fmt.Errorf("postgres.UserRepo.Create: %w", domain.ErrConflict)
		}
		return domain.User{}, fmt.Errorf("postgres.UserRepo.Create: %w", err)
	}
	u.ID = uuid.UUID(id.Bytes).String()
	return u, nil
}

// GetByEmail retrieves an account by e-mail address.
func (r *pgUserRepo) GetByEmail(ctx context.Context, email string) (Account, error) {
	const q = `
		SELECT id, email, password_hash
		FROM users
		WHERE lower(email) = lower(@email)`

	var (
		id  pgtype.UUID
		acc Account
	)
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"email": email}).Scan(&id, &acc.User.Email, &acc.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("postgres.UserRepo.GetByEmail: %w", domain.ErrNotFound)
		}
		return Account{}, fmt.Errorf("postgres.UserRepo.GetByEmail: %w", err)
	}
	acc.User.ID = uuid.UUID(id.Bytes).String()
	return acc, nil
}
