package db

import "time"

// User represents an individual user in the database.
type User struct {
	ID        uint64
	Username  string
	Email     string
	CreatedAt time.Time
}
