package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var window = TradingWindow{StartHour: 9, EndHour: 21, ClosedDays: []time.Weekday{time.Friday, time.Saturday}}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestValidateAmount(t *testing.T) {
	testCases := []struct {
		name       string
		amount     string
		dailyTotal string
		expected   shared.ErrorCode
	}{
		{"WithinRange", "100", "0", ""},
		{"AtMinimum", "1", "0", ""},
		{"AtMaximum", "10000", "0", ""},
		{"BelowMinimum", "0.5", "0", shared.CodeAmountOutOfRange},
		{"Zero", "0", "0", shared.CodeAmountOutOfRange},
		{"Negative", "-10", "0", shared.CodeAmountOutOfRange},
		{"AboveMaximum", "20000", "0", shared.CodeAmountOutOfRange},
		{"DailyLimitReachedExactly", "5000", "45000", ""},
		{"DailyLimitExceeded", "5000", "45000.01", shared.CodeDailyLimitExceeded},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAmount(d(tc.amount), d("1"), d("10000"), d(tc.dailyTotal), d("50000"))
			if tc.expected == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, shared.ValidationError{Code: tc.expected}), "got %v", err)
		})
	}
}

func TestValidateTradingWindow(t *testing.T) {
	cairo, err := time.LoadLocation("Africa/Cairo")
	require.NoError(t, err)

	testCases := []struct {
		name     string
		local    time.Time
		expected shared.ErrorCode
	}{
		{"WednesdayAfternoon", time.Date(2024, 5, 15, 14, 0, 0, 0, cairo), ""},
		{"OpeningHourInclusive", time.Date(2024, 5, 15, 9, 0, 0, 0, cairo), ""},
		{"LastMinuteBeforeClose", time.Date(2024, 5, 15, 20, 59, 59, 0, cairo), ""},
		{"ClosingHourExclusive", time.Date(2024, 5, 15, 21, 0, 0, 0, cairo), shared.CodeOutsideTradingHours},
		{"EarlyMorning", time.Date(2024, 5, 15, 3, 0, 0, 0, cairo), shared.CodeOutsideTradingHours},
		{"FridayNoon", time.Date(2024, 5, 17, 12, 0, 0, 0, cairo), shared.CodeWeekendRestricted},
		{"SaturdayNightWeekendWins", time.Date(2024, 5, 18, 23, 0, 0, 0, cairo), shared.CodeWeekendRestricted},
		{"SundayOpen", time.Date(2024, 5, 19, 10, 0, 0, 0, cairo), ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTradingWindow(tc.local.UTC(), cairo, window)
			if tc.expected == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, shared.ValidationError{Code: tc.expected}), "got %v", err)
		})
	}
}

func TestRequiresEscrow(t *testing.T) {
	assert.True(t, RequiresEscrow(d("5000"), d("1000")))
	assert.True(t, RequiresEscrow(d("1000"), d("1000")))
	assert.False(t, RequiresEscrow(d("999.99"), d("1000")))
}

func TestStartOfLocalDay(t *testing.T) {
	cairo, err := time.LoadLocation("Africa/Cairo")
	require.NoError(t, err)

	ts := time.Date(2024, 5, 15, 23, 30, 0, 0, time.UTC)
	start := StartOfLocalDay(ts, cairo)

	local := start.In(cairo)
	assert.Equal(t, 0, local.Hour())
	assert.Equal(t, 16, local.Day(), "23:30 UTC is already the next day in Cairo")
}
