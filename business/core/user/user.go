// Package user provides a core business API for user records. Registration
// validation and password handling are owned by the perimeter; this core
// only maintains the identities that proposals and votes reference.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/civicledger/participation/business/core/user/db"
	"go.uber.org/zap"

	"database/sql"
)

// Set of error variables for CRUD operations.
var (
	ErrNotFound      = errors.New("user not found")
	ErrUniqueViolate = errors.New("username already exists")
)

// User represents an individual user.
type User struct {
	ID        uint64    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Username string `json:"username" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
}

// Core manages the set of APIs for user access.
type Core struct {
	log   *zap.SugaredLogger
	store db.Store
}

// NewCore constructs a core for user api access.
func NewCore(log *zap.SugaredLogger, sqlDB *sql.DB) Core {
	return Core{
		log:   log,
		store: db.NewStore(log, sqlDB),
	}
}

// Create adds a User to the database. It returns the created User with
// fields like ID and CreatedAt populated.
func (c Core) Create(ctx context.Context, nu NewUser, now time.Time) (User, error) {
	dbUsr := db.User{
		Username:  nu.Username,
		Email:     nu.Email,
		CreatedAt: now.UTC(),
	}

	dbUsr, err := c.store.Create(ctx, dbUsr)
	if err != nil {
		if errors.Is(err, db.ErrDBDuplicate) {
			return User{}, ErrUniqueViolate
		}
		return User{}, fmt.Errorf("create: %w", err)
	}

	return toUser(dbUsr), nil
}

// QueryByID gets the specified user from the database.
func (c Core) QueryByID(ctx context.Context, userID uint64) (User, error) {
	dbUsr, err := c.store.QueryByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrDBNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query: %w", err)
	}

	return toUser(dbUsr), nil
}

// Exists reports whether the specified user is present in the database.
func (c Core) Exists(ctx context.Context, userID uint64) (bool, error) {
	if _, err := c.QueryByID(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// =============================================================================

func toUser(dbUsr db.User) User {
	return User{
		ID:        dbUsr.ID,
		Username:  dbUsr.Username,
		Email:     dbUsr.Email,
		CreatedAt: dbUsr.CreatedAt,
	}
}
