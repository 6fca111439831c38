package listing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/diagnosis/stays-bookings/services/bookings/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStaticProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"listing_id":"l-1","host_id":"h-1","start_date":"2025-06-01","end_date":"2025-09-01","max_occupancy":4,"price_per_night":12000}
	]`), 0o600))

	p, err := LoadStaticProvider(path)
	require.NoError(t, err)

	a, err := p.GetAvailability(context.Background(), "l-1")
	require.NoError(t, err)
	assert.Equal(t, "h-1", a.HostID)
	assert.Equal(t, 4, a.MaxOccupancy)
	assert.Equal(t, int64(12000), a.PricePerNight)
	assert.True(t, a.StartDate.Equal(time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)))

	_, err = p.GetAvailability(context.Background(), "l-2")
	assert.ErrorIs(t, err, domain.ErrListingNotFound)
}

func TestLoadStaticProviderRejectsBadWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"listing_id":"l-1","start_date":"2025-09-01","end_date":"2025-06-01"}]`), 0o600))

	_, err := LoadStaticProvider(path)
	assert.ErrorIs(t, err, domain.ErrInvalidDateRange)
}
