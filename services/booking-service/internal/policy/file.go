package policy

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"gopkg.in/yaml.v3"
)

// FileSource serves profiles from a YAML file keyed by business id. ${VAR} references are
// expanded from the environment before parsing.
//
//	businesses:
//	  salon-1:
//	    timezone: ${SALON1_TZ}
//	    slot_step_minutes: 15
//	    min_lead_minutes: 60
type FileSource struct {
	profiles map[string]model.BusinessProfile
}

type fileDoc struct {
	Businesses map[string]struct {
		Timezone        string `yaml:"timezone"`
		SlotStepMinutes int    `yaml:"slot_step_minutes"`
		MinLeadMinutes  *int   `yaml:"min_lead_minutes"`
	} `yaml:"businesses"`
}

func LoadFile(path string) (*FileSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParseFile(raw)
}

func ParseFile(raw []byte) (*FileSource, error) {
	var doc fileDoc
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &doc); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	out := &FileSource{profiles: make(map[string]model.BusinessProfile, len(doc.Businesses))}
	for id, b := range doc.Businesses {
		if b.SlotStepMinutes < 0 || (b.MinLeadMinutes != nil && *b.MinLeadMinutes < 0) {
			return nil, fmt.Errorf("business %s: minutes must not be negative", id)
		}
		p := model.BusinessProfile{
			BusinessID: id,
			Timezone:   b.Timezone,
			SlotStep:   time.Duration(b.SlotStepMinutes) * time.Minute,
		}
		if b.MinLeadMinutes != nil {
			p.MinLead = time.Duration(*b.MinLeadMinutes) * time.Minute
			p.MinLeadSet = true
		}
		out.profiles[id] = p
	}
	return out, nil
}

func (f *FileSource) GetBusinessProfile(_ context.Context, businessID string) (model.BusinessProfile, bool, error) {
	p, ok := f.profiles[businessID]
	return p, ok, nil
}
