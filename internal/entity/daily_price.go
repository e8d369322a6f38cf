package entity

import "time"

// DailyPrice is one OHLCV bar, unique per (ticker, date).
type DailyPrice struct {
	Ticker    string    `gorm:"primaryKey;type:varchar(12)" json:"ticker"`
	Date      time.Time `gorm:"primaryKey;type:date" json:"date"`
	Open      int64     `gorm:"not null" json:"open"`
	High      int64     `gorm:"not null" json:"high"`
	Low       int64     `gorm:"not null" json:"low"`
	Close     int64     `gorm:"not null" json:"close"`
	Volume    int64     `gorm:"not null" json:"volume"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DailyPrice) TableName() string {
	return "daily_prices"
}
