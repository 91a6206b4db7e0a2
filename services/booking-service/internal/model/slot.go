package model

import "time"

type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	StaffID   string    `json:"staff_id"`
	Available bool      `json:"available"`
}

// SlotTime is the collapsed "any staff" view of one clock time.
type SlotTime struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
	StaffIDs  []string  `json:"staff_ids"`
}
