// Package users looks up contact details for booking participants.
package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Contact struct {
	ID    string
	Email string
	Name  string
}

type Directory interface {
	// FindByID returns nil, nil when the user does not exist.
	FindByID(ctx context.Context, id string) (*Contact, error)
}

type directory struct {
	pool *pgxpool.Pool
}

func NewDirectory(pool *pgxpool.Pool) Directory {
	return &directory{pool: pool}
}

func (d *directory) FindByID(ctx context.Context, id string) (*Contact, error) {
	const q = `SELECT id::text, email, COALESCE(name, '') FROM users WHERE id::text=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var c Contact
	err := d.pool.QueryRow(ctx, q, id).Scan(&c.ID, &c.Email, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
