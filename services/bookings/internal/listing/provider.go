// Package listing reads listing availability for the booking core. Listings
// are owned elsewhere; everything here is read-only.
package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/diagnosis/stays-bookings/services/bookings/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Provider returns a listing's published availability or domain.ErrListingNotFound.
type Provider interface {
	GetAvailability(ctx context.Context, listingID string) (*domain.Availability, error)
}

type postgresProvider struct {
	pool *pgxpool.Pool
}

// NewPostgresProvider reads the listings table shared with the listings service.
func NewPostgresProvider(pool *pgxpool.Pool) Provider {
	return &postgresProvider{pool: pool}
}

func (p *postgresProvider) GetAvailability(ctx context.Context, listingID string) (*domain.Availability, error) {
	const q = `SELECT id::text, user_id::text, start_date, end_date, max_occupancy, price_per_night
		FROM listings
		WHERE id::text=$1 AND (status IS NULL OR status IN ('active','approved'))`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var (
		a     domain.Availability
		price float64
	)
	err := p.pool.QueryRow(ctx, q, listingID).Scan(
		&a.ListingID, &a.HostID, &a.StartDate, &a.EndDate, &a.MaxOccupancy, &price,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load listing %s: %w", listingID, err)
	}
	// listings store whole currency units; bookings work in minor units.
	a.PricePerNight = int64(price*100 + 0.5)
	return &a, nil
}

// StaticProvider serves a fixed set of listings. It backs BOOKING_STORE=memory.
type StaticProvider struct {
	mu       sync.RWMutex
	listings map[string]domain.Availability
}

func NewStaticProvider(listings ...domain.Availability) *StaticProvider {
	p := &StaticProvider{listings: make(map[string]domain.Availability)}
	for _, l := range listings {
		p.Put(l)
	}
	return p
}

// LoadStaticProvider reads a JSON array of availability records.
func LoadStaticProvider(path string) (*StaticProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []struct {
		ListingID     string `json:"listing_id"`
		HostID        string `json:"host_id"`
		StartDate     string `json:"start_date"`
		EndDate       string `json:"end_date"`
		MaxOccupancy  int    `json:"max_occupancy"`
		PricePerNight int64  `json:"price_per_night"`
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	p := NewStaticProvider()
	for _, r := range records {
		window, err := domain.ParseDateRange(r.StartDate, r.EndDate)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", r.ListingID, err)
		}
		p.Put(domain.Availability{
			ListingID:     r.ListingID,
			HostID:        r.HostID,
			StartDate:     window.Start,
			EndDate:       window.End,
			MaxOccupancy:  r.MaxOccupancy,
			PricePerNight: r.PricePerNight,
		})
	}
	return p, nil
}

func (p *StaticProvider) Put(a domain.Availability) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listings[a.ListingID] = a
}

func (p *StaticProvider) GetAvailability(_ context.Context, listingID string) (*domain.Availability, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.listings[listingID]
	if !ok {
		return nil, domain.ErrListingNotFound
	}
	return &a, nil
}

var (
	_ Provider = (*postgresProvider)(nil)
	_ Provider = (*StaticProvider)(nil)
)
