package entity

import (
	"time"
)

// Stock is a listed instrument, keyed by its six digit ticker.
type Stock struct {
	Ticker     string     `gorm:"primaryKey;type:varchar(12)" json:"ticker"`
	Name       string     `gorm:"not null" json:"name"`
	Market     string     `gorm:"not null" json:"market"`
	ListedDate *time.Time `gorm:"type:date" json:"listed_date,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Stock) TableName() string {
	return "stocks"
}
