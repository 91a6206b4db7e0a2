package policy

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/stretchr/testify/require"
)

type mapSource map[string]model.BusinessProfile

func (m mapSource) GetBusinessProfile(_ context.Context, id string) (model.BusinessProfile, bool, error) {
	p, ok := m[id]
	return p, ok, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestLayeredFallsThroughToDefaults(t *testing.T) {
	p := NewLayered(discard(), Defaults{Timezone: "Europe/Berlin", SlotStep: 15 * time.Minute, MinLead: time.Hour})
	got, err := p.Profile(context.Background(), "b1")
	require.NoError(t, err)
	require.Equal(t, model.BusinessProfile{BusinessID: "b1", Timezone: "Europe/Berlin", SlotStep: 15 * time.Minute, MinLead: time.Hour}, got)
}

func TestLayeredFirstSourceWins(t *testing.T) {
	store := mapSource{"b1": {Timezone: "America/New_York"}}
	file := mapSource{"b1": {Timezone: "Asia/Tokyo", SlotStep: 10 * time.Minute}, "b2": {SlotStep: 20 * time.Minute}}
	p := NewLayered(discard(), Defaults{}, store, file)

	got, err := p.Profile(context.Background(), "b1")
	require.NoError(t, err)
	require.Equal(t, "America/New_York", got.Timezone)
	require.Equal(t, 30*time.Minute, got.SlotStep)

	got, err = p.Profile(context.Background(), "b2")
	require.NoError(t, err)
	require.Equal(t, "UTC", got.Timezone)
	require.Equal(t, 20*time.Minute, got.SlotStep)
}

func TestLayeredKeepsExplicitZeroLead(t *testing.T) {
	src := mapSource{
		"walkups": {MinLeadSet: true},
		"unset":   {Timezone: "UTC"},
		"own":     {MinLead: 2 * time.Hour},
	}
	p := NewLayered(discard(), Defaults{MinLead: time.Hour}, src)
	ctx := context.Background()

	got, err := p.Profile(ctx, "walkups")
	require.NoError(t, err)
	require.Zero(t, got.MinLead)

	got, err = p.Profile(ctx, "unset")
	require.NoError(t, err)
	require.Equal(t, time.Hour, got.MinLead)

	got, err = p.Profile(ctx, "own")
	require.NoError(t, err)
	require.Equal(t, 2*time.Hour, got.MinLead)
}

func TestLayeredRejectsUnknownTimezone(t *testing.T) {
	p := NewLayered(discard(), Defaults{Timezone: "UTC"}, mapSource{"b1": {Timezone: "Mars/Olympus"}})
	got, err := p.Profile(context.Background(), "b1")
	require.NoError(t, err)
	require.Equal(t, "UTC", got.Timezone)
}

func TestParseFileExpandsEnv(t *testing.T) {
	t.Setenv("SALON_TZ", "Europe/Paris")
	src, err := ParseFile([]byte(`
businesses:
  salon-1:
    timezone: ${SALON_TZ}
    slot_step_minutes: 15
    min_lead_minutes: 60
`))
	require.NoError(t, err)
	got, ok, err := src.GetBusinessProfile(context.Background(), "salon-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Europe/Paris", got.Timezone)
	require.Equal(t, time.Hour, got.MinLead)
	require.True(t, got.MinLeadSet)

	src, err = ParseFile([]byte("businesses:\n  a: {min_lead_minutes: 0}\n  b: {timezone: UTC}\n"))
	require.NoError(t, err)
	got, _, _ = src.GetBusinessProfile(context.Background(), "a")
	require.True(t, got.MinLeadSet)
	got, _, _ = src.GetBusinessProfile(context.Background(), "b")
	require.False(t, got.MinLeadSet)

	_, err = ParseFile([]byte("businesses:\n  x:\n    slot_step_minutes: -5\n"))
	require.Error(t, err)
}
