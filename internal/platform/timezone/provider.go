// Package timezone resolves IANA zone ids for the trading-window checks.
package timezone

import (
	"fmt"
	"sync"
	"time"

	"github.com/pi-escrow-ledger/internal/domain/rules"
	"github.com/pi-escrow-ledger/internal/domain/shared"
)

// Provider loads zones from the tz database and caches them.
type Provider struct {
	mu        sync.RWMutex
	locations map[string]*time.Location
}

func NewProvider() *Provider {
	return &Provider{locations: make(map[string]*time.Location)}
}

// Location returns the zone for zoneID. Unknown ids are validation errors.
func (p *Provider) Location(zoneID string) (*time.Location, error) {
	p.mu.RLock()
	loc, ok := p.locations[zoneID]
	p.mu.RUnlock()
	if ok {
		return loc, nil
	}

	if zoneID == "" {
		return nil, shared.ValidationError{Code: shared.CodeInvalidRequest, Message: "time zone is required"}
	}
	loc, err := time.LoadLocation(zoneID)
	if err != nil {
		return nil, shared.ValidationError{Code: shared.CodeInvalidRequest, Message: fmt.Sprintf("unknown time zone %q", zoneID)}
	}

	p.mu.Lock()
	p.locations[zoneID] = loc
	p.mu.Unlock()
	return loc, nil
}

// LocalTime returns the hour and weekday of instant in zoneID.
func (p *Provider) LocalTime(instant time.Time, zoneID string) (rules.LocalTime, error) {
	loc, err := p.Location(zoneID)
	if err != nil {
		return rules.LocalTime{}, err
	}
	return rules.LocalTimeAt(instant, loc), nil
}
