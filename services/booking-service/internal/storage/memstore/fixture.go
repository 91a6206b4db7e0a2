package memstore

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"gopkg.in/yaml.v3"
)

// Fixture is the YAML seed format for local runs:
//
//	businesses:
//	  - id: salon-1
//	    timezone: Europe/Berlin
//	    staff:
//	      - id: anna
//	        schedules: [{weekday: 2, open: "10:00", close: "18:00"}]
//	    services:
//	      - {id: cut, duration_minutes: 60, buffer_minutes: 15, staff: [anna]}
type Fixture struct {
	Businesses []fixtureBusiness `yaml:"businesses"`
}

type fixtureBusiness struct {
	ID              string           `yaml:"id"`
	Timezone        string           `yaml:"timezone"`
	SlotStepMinutes int              `yaml:"slot_step_minutes"`
	MinLeadMinutes  *int             `yaml:"min_lead_minutes"`
	Staff           []fixtureStaff   `yaml:"staff"`
	Services        []fixtureService `yaml:"services"`
}

type fixtureStaff struct {
	ID        string            `yaml:"id"`
	Name      string            `yaml:"name"`
	Inactive  bool              `yaml:"inactive"`
	Schedules []fixtureSchedule `yaml:"schedules"`
	TimeOff   []fixtureTimeOff  `yaml:"time_off"`
}

type fixtureSchedule struct {
	Weekday int    `yaml:"weekday"`
	Open    string `yaml:"open"`
	Close   string `yaml:"close"`
}

type fixtureTimeOff struct {
	Start  time.Time `yaml:"start"`
	End    time.Time `yaml:"end"`
	Reason string    `yaml:"reason"`
}

type fixtureService struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	DurationMinutes int      `yaml:"duration_minutes"`
	BufferMinutes   int      `yaml:"buffer_minutes"`
	DepositRequired bool     `yaml:"deposit_required"`
	Staff           []string `yaml:"staff"`
}

func LoadFixtureFile(s *Store, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}
	return LoadFixture(s, raw)
}

func LoadFixture(s *Store, raw []byte) error {
	var fx Fixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}
	for _, b := range fx.Businesses {
		if b.ID == "" {
			return fmt.Errorf("fixture business without id")
		}
		if b.Timezone != "" {
			if _, err := time.LoadLocation(b.Timezone); err != nil {
				return fmt.Errorf("business %s: %w", b.ID, err)
			}
			p := model.BusinessProfile{
				BusinessID: b.ID,
				Timezone:   b.Timezone,
				SlotStep:   time.Duration(b.SlotStepMinutes) * time.Minute,
			}
			if b.MinLeadMinutes != nil {
				p.MinLead = time.Duration(*b.MinLeadMinutes) * time.Minute
				p.MinLeadSet = true
			}
			s.PutProfile(p)
		}
		for _, st := range b.Staff {
			s.PutStaff(model.Staff{ID: st.ID, BusinessID: b.ID, Name: st.Name, Active: !st.Inactive})
			for _, row := range st.Schedules {
				open, err := parseClock(row.Open)
				if err != nil {
					return fmt.Errorf("staff %s: %w", st.ID, err)
				}
				closeAt, err := parseClock(row.Close)
				if err != nil {
					return fmt.Errorf("staff %s: %w", st.ID, err)
				}
				s.PutSchedule(b.ID, model.WorkingSchedule{
					StaffID:     st.ID,
					Weekday:     time.Weekday(row.Weekday),
					OpenMinute:  open,
					CloseMinute: closeAt,
					Active:      true,
				})
			}
			for _, off := range st.TimeOff {
				s.PutTimeOff(b.ID, model.TimeOff{StaffID: st.ID, Start: off.Start, End: off.End, Reason: off.Reason})
			}
		}
		for _, svc := range b.Services {
			if svc.DurationMinutes <= 0 {
				return fmt.Errorf("service %s: duration_minutes must be positive", svc.ID)
			}
			s.PutService(model.ServiceDefinition{
				ID:              svc.ID,
				BusinessID:      b.ID,
				Name:            svc.Name,
				DurationMinutes: svc.DurationMinutes,
				BufferMinutes:   svc.BufferMinutes,
				DepositRequired: svc.DepositRequired,
			}, svc.Staff...)
		}
	}
	return nil
}

// parseClock turns "HH:MM" into minutes after midnight; "24:00" is allowed.
func parseClock(raw string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q", raw)
	}
	hh, err1 := strconv.Atoi(h)
	mm, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil || hh < 0 || mm < 0 || mm > 59 || hh*60+mm > 24*60 {
		return 0, fmt.Errorf("invalid clock %q", raw)
	}
	return hh*60 + mm, nil
}
