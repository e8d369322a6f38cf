package entity

import "time"

// Investor type codes stored in investor_trends.investor_type.
const (
	InvestorForeign            = "foreign"
	InvestorInstitutionalTotal = "institutional_total"
	InvestorIndividual         = "individual"
	InvestorOtherCorporate     = "other_corporate"
)

// InvestorTrend is the traded value of one investor group for a ticker on a date.
// NetValue is negative when the group sold more than it bought.
type InvestorTrend struct {
	Ticker       string    `gorm:"primaryKey;type:varchar(12)" json:"ticker"`
	Date         time.Time `gorm:"primaryKey;type:date" json:"date"`
	InvestorType string    `gorm:"primaryKey;type:varchar(32)" json:"investor_type"`
	BuyValue     int64     `gorm:"not null;default:0" json:"buy_value"`
	SellValue    int64     `gorm:"not null;default:0" json:"sell_value"`
	NetValue     int64     `gorm:"not null;default:0" json:"net_value"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (InvestorTrend) TableName() string {
	return "investor_trends"
}
