package entity

import "time"

// SectorPrice is one daily bar of a sector index, unique per (sector_code, date).
type SectorPrice struct {
	SectorCode string    `gorm:"primaryKey;type:varchar(16)" json:"sector_code"`
	Date       time.Time `gorm:"primaryKey;type:date" json:"date"`
	SectorName string    `gorm:"not null" json:"sector_name"`
	Open       float64   `gorm:"type:numeric(14,2);not null" json:"open"`
	High       float64   `gorm:"type:numeric(14,2);not null" json:"high"`
	Low        float64   `gorm:"type:numeric(14,2);not null" json:"low"`
	Close      float64   `gorm:"type:numeric(14,2);not null" json:"close"`
	Volume     int64     `gorm:"not null" json:"volume"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SectorPrice) TableName() string {
	return "sector_prices"
}
