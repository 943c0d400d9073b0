package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedZone struct {
	lt  LocalTime
	err error
}

func (f fixedZone) LocalTime(time.Time, string) (LocalTime, error) { return f.lt, f.err }
func (f fixedZone) Location(string) (*time.Location, error)        { return time.UTC, f.err }

func TestValidator(t *testing.T) {
	limits := Limits{MinAmount: d("1"), MaxAmount: d("10000"), DailyLimit: d("50000")}

	open := NewValidator(limits, window, "Africa/Cairo", fixedZone{lt: LocalTime{Hour: 14, Weekday: time.Wednesday}})
	assert.NoError(t, open.ValidateTradingWindow(context.Background(), time.Now()))
	assert.NoError(t, open.ValidateAmount(d("100"), d("0")))
	assert.Equal(t, "Africa/Cairo", open.ZoneID())

	night := NewValidator(limits, window, "Africa/Cairo", fixedZone{lt: LocalTime{Hour: 3, Weekday: time.Wednesday}})
	err := night.ValidateTradingWindow(context.Background(), time.Now())
	assert.True(t, errors.Is(err, shared.ValidationError{Code: shared.CodeOutsideTradingHours}))

	broken := NewValidator(limits, window, "Nowhere", fixedZone{err: errors.New("unknown zone")})
	err = broken.ValidateTradingWindow(context.Background(), time.Now())
	require.Error(t, err)
	assert.False(t, errors.Is(err, shared.ValidationError{}))
}
