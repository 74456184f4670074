package model

import "time"

// LabelCount is a grouped count used by the admin reports
type LabelCount struct {
	Label string `json:"label" db:"label"`
	Total int    `json:"total" db:"total"`
}

type DailyCount struct {
	Dia   time.Time `json:"dia" db:"dia"`
	Total int       `json:"total" db:"total"`
}
