package pgclient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Client wraps a PostgreSQL connection to the database holding user profiles
type Client struct {
	db *sql.DB
}

// NewClient creates a new PostgreSQL client
func NewClient(connectionString string) (*Client, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{db: db}, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping tests the database connection
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// RoleForUser reads profiles.role for the user. A missing row or a NULL
// role yields "".
func (c *Client) RoleForUser(ctx context.Context, userID string) (string, error) {
	var role sql.NullString
	query := "SELECT role FROM profiles WHERE id = $1"
	if err := c.db.QueryRowContext(ctx, query, userID).Scan(&role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to query profile role: %w", err)
	}
	return role.String, nil
}
