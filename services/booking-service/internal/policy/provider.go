// Package policy resolves per-business scheduling settings: timezone, slot step and
// minimum lead time.
package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type Provider interface {
	Profile(ctx context.Context, businessID string) (model.BusinessProfile, error)
}

// ProfileSource is a partial source of profiles; ok=false means "no opinion".
type ProfileSource interface {
	GetBusinessProfile(ctx context.Context, businessID string) (model.BusinessProfile, bool, error)
}

type Defaults struct {
	Timezone string
	SlotStep time.Duration
	MinLead  time.Duration
}

// Layered asks each source in order and fills unset fields from Defaults.
type Layered struct {
	defaults Defaults
	sources  []ProfileSource
	logger   *slog.Logger
}

func NewLayered(logger *slog.Logger, defaults Defaults, sources ...ProfileSource) *Layered {
	if defaults.Timezone == "" {
		defaults.Timezone = "UTC"
	}
	if defaults.SlotStep <= 0 {
		defaults.SlotStep = 30 * time.Minute
	}
	if defaults.MinLead < 0 {
		defaults.MinLead = 0
	}
	return &Layered{defaults: defaults, sources: sources, logger: logger}
}

func (p *Layered) Profile(ctx context.Context, businessID string) (model.BusinessProfile, error) {
	prof := model.BusinessProfile{BusinessID: businessID}
	for _, src := range p.sources {
		if src == nil {
			continue
		}
		got, ok, err := src.GetBusinessProfile(ctx, businessID)
		if err != nil {
			return model.BusinessProfile{}, err
		}
		if ok {
			prof = got
			prof.BusinessID = businessID
			break
		}
	}

	if prof.Timezone == "" {
		prof.Timezone = p.defaults.Timezone
	} else if _, err := time.LoadLocation(prof.Timezone); err != nil {
		p.logger.Warn("unknown business timezone, using default", "business_id", businessID, "timezone", prof.Timezone)
		prof.Timezone = p.defaults.Timezone
	}
	if prof.SlotStep <= 0 {
		prof.SlotStep = p.defaults.SlotStep
	}
	switch {
	case prof.MinLead < 0:
		prof.MinLead = 0
	case prof.MinLead == 0 && !prof.MinLeadSet:
		prof.MinLead = p.defaults.MinLead
	}
	return prof, nil
}
