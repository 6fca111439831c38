package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/stays-bookings/services/bookings/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BookingRepository stores booking records. Lookups return nil, nil when the
// booking does not exist. Update is a compare-and-swap on Version.
type BookingRepository interface {
	Create(ctx context.Context, b *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	ListByListing(ctx context.Context, listingID string, f domain.BookingFilter) ([]domain.Booking, error)
	ListByUser(ctx context.Context, userID string, f domain.BookingFilter) ([]domain.Booking, error)
	ListByStatus(ctx context.Context, status domain.BookingStatus, f domain.BookingFilter) ([]domain.Booking, error)
	ListOverduePending(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error)
	ListEndedConfirmed(ctx context.Context, today time.Time, limit int) ([]domain.Booking, error)
	HasConfirmedOverlap(ctx context.Context, listingID string, dates domain.DateRange, excludeID string) (bool, error)
	// Update persists b if the stored version still equals b.Version and
	// bumps b.Version on success.
	Update(ctx context.Context, b *domain.Booking) error
}

//go:embed schema.sql
var schemaSQL string

// Migrate creates the bookings table and its constraints if missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply bookings schema: %w", err)
	}
	return nil
}

type postgresBookingRepository struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) BookingRepository {
	return &postgresBookingRepository{pool: pool}
}

const bookingCols = `id, listing_id, guest_id, host_id,
start_date, end_date, guest_count,
price_per_night, total_price, host_fee, guest_fee,
status, payment_status, payment_reference, payment_method, expires_at,
cancellation_reason, cancellation_details, cancelled_by, cancelled_at,
expired_on, version, created_at, updated_at`

// pgcodes from https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
)

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(
		&b.ID, &b.ListingID, &b.GuestID, &b.HostID,
		&b.Dates.Start, &b.Dates.End, &b.GuestCount,
		&b.PricePerNight, &b.TotalPrice, &b.HostFee, &b.GuestFee,
		&b.Status, &b.PaymentStatus, &b.PaymentReference, &b.PaymentMethod, &b.ExpiresAt,
		&b.CancellationReason, &b.CancellationDetails, &b.CancelledBy, &b.CancelledAt,
		&b.ExpiredOn, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *postgresBookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	const q = `INSERT INTO bookings (
		id, listing_id, guest_id, host_id,
		start_date, end_date, guest_count,
		price_per_night, total_price, host_fee, guest_fee,
		status, payment_status, payment_reference, payment_method, expires_at,
		version, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$18)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q,
		b.ID, b.ListingID, b.GuestID, b.HostID,
		b.Dates.Start, b.Dates.End, b.GuestCount,
		b.PricePerNight, b.TotalPrice, b.HostFee, b.GuestFee,
		b.Status, b.PaymentStatus, b.PaymentReference, b.PaymentMethod, b.ExpiresAt,
		b.Version, b.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("booking %s already exists: %w", b.ID, err)
	}
	return err
}

func (r *postgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	b, err := scanBooking(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (r *postgresBookingRepository) ListByListing(ctx context.Context, listingID string, f domain.BookingFilter) ([]domain.Booking, error) {
	return r.list(ctx, `listing_id=$1`, []any{listingID}, f)
}

func (r *postgresBookingRepository) ListByUser(ctx context.Context, userID string, f domain.BookingFilter) ([]domain.Booking, error) {
	return r.list(ctx, `(guest_id=$1 OR host_id=$1)`, []any{userID}, f)
}

func (r *postgresBookingRepository) ListByStatus(ctx context.Context, status domain.BookingStatus, f domain.BookingFilter) ([]domain.Booking, error) {
	f.Status = &status
	return r.list(ctx, `TRUE`, nil, f)
}

// list runs where with its args, then the status filter, then paging.
func (r *postgresBookingRepository) list(ctx context.Context, where string, args []any, f domain.BookingFilter) ([]domain.Booking, error) {
	f = f.Normalize()

	q := `SELECT ` + bookingCols + ` FROM bookings WHERE ` + where
	if f.Status != nil {
		clause, arg := statusClause(*f.Status, f.AsOf, len(args)+1)
		q += ` AND ` + clause
		args = append(args, arg)
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	return r.query(ctx, q, args...)
}

// statusClause filters on status as a reader sees it at asOf. n is the
// placeholder number of the clause's one argument.
func statusClause(status domain.BookingStatus, asOf time.Time, n int) (string, any) {
	if asOf.IsZero() {
		return fmt.Sprintf(`status=$%d`, n), string(status)
	}
	switch status {
	case domain.BookingPending:
		return fmt.Sprintf(`(status='pending' AND expires_at > $%d)`, n), asOf
	case domain.BookingExpired:
		return fmt.Sprintf(`(status='expired' OR (status='pending' AND expires_at <= $%d))`, n), asOf
	default:
		return fmt.Sprintf(`status=$%d`, n), string(status)
	}
}

func (r *postgresBookingRepository) ListOverduePending(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings
		WHERE status='pending' AND expires_at <= $1
		ORDER BY expires_at LIMIT $2`
	return r.query(ctx, q, now, limit)
}

func (r *postgresBookingRepository) ListEndedConfirmed(ctx context.Context, today time.Time, limit int) ([]domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings
		WHERE status='confirmed' AND end_date <= $1
		ORDER BY end_date LIMIT $2`
	return r.query(ctx, q, today, limit)
}

func (r *postgresBookingRepository) query(ctx context.Context, q string, args ...any) ([]domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func (r *postgresBookingRepository) HasConfirmedOverlap(ctx context.Context, listingID string, dates domain.DateRange, excludeID string) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM bookings
		WHERE listing_id=$1 AND status='confirmed' AND id<>$4
		AND daterange(start_date, end_date) && daterange($2::date, $3::date)
	)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, q, listingID, dates.Start, dates.End, excludeID).Scan(&exists)
	return exists, err
}

func (r *postgresBookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	const q = `UPDATE bookings SET
		status=$3, payment_status=$4, payment_reference=$5,
		cancellation_reason=$6, cancellation_details=$7, cancelled_by=$8, cancelled_at=$9,
		expired_on=$10, updated_at=$11, version=version+1
	WHERE id=$1 AND version=$2
	RETURNING version`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var version int64
	err := r.pool.QueryRow(ctx, q,
		b.ID, b.Version,
		b.Status, b.PaymentStatus, b.PaymentReference,
		b.CancellationReason, b.CancellationDetails, b.CancelledBy, b.CancelledAt,
		b.ExpiredOn, b.UpdatedAt,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrVersionConflict
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
		return domain.ErrDatesUnavailable
	}
	if err != nil {
		return err
	}
	b.Version = version
	return nil
}

var _ BookingRepository = (*postgresBookingRepository)(nil)
