package entity

import "time"

// Sector is either an index definition row (Ticker nil) or a membership row.
type Sector struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SectorCode string    `gorm:"not null;type:varchar(16)" json:"sector_code"`
	SectorName string    `gorm:"not null" json:"sector_name"`
	Ticker     *string   `gorm:"type:varchar(12)" json:"ticker,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Sector) TableName() string {
	return "sectors"
}
