// Package db contains user related CRUD functionality.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Set of error variables for the store.
var (
	ErrDBNotFound  = sql.ErrNoRows
	ErrDBDuplicate = errors.New("duplicate row")
)

// Store manages the set of APIs for user database access.
type Store struct {
	log *zap.SugaredLogger
	db  *sql.DB
}

// NewStore constructs a data store for api access.
func NewStore(log *zap.SugaredLogger, db *sql.DB) Store {
	return Store{
		log: log,
		db:  db,
	}
}

// Create inserts a new user into the database.
func (s Store) Create(ctx context.Context, usr User) (User, error) {
	const q = `
	INSERT INTO users
		(username, email, created_at)
	VALUES
		($1, $2, $3)`

	res, err := s.db.ExecContext(ctx, q, usr.Username, usr.Email, usr.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDBDuplicate
		}
		return User{}, fmt.Errorf("inserting user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("retrieving user id: %w", err)
	}
	usr.ID = uint64(id)

	return usr, nil
}

// QueryByID retrieves the specified user from the database.
func (s Store) QueryByID(ctx context.Context, userID uint64) (User, error) {
	const q = `
	SELECT
		id, username, email, created_at
	FROM
		users
	WHERE
		id = $1`

	var usr User
	err := s.db.QueryRowContext(ctx, q, userID).Scan(&usr.ID, &usr.Username, &usr.Email, &usr.CreatedAt)
	if err != nil {
		return User{}, err
	}

	return usr, nil
}

// isUniqueViolation matches the sqlite unique constraint failure. The driver
// has no typed error for this.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
