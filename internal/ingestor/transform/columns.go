package transform

import "k-stock-insight/internal/entity"

// PriceColumns maps upstream OHLCV column names onto a bar.
type PriceColumns struct {
	Open   string
	High   string
	Low    string
	Close  string
	Volume string
}

// InvestorColumn maps one investor group to its upstream columns.
// An empty Buy or Sell means the upstream report does not carry it.
type InvestorColumn struct {
	Type string
	Net  string
	Buy  string
	Sell string
}

var (
	StockPriceColumns = PriceColumns{
		Open:   "TDD_OPNPRC",
		High:   "TDD_HGPRC",
		Low:    "TDD_LWPRC",
		Close:  "TDD_CLSPRC",
		Volume: "ACC_TRDVOL",
	}

	IndexPriceColumns = PriceColumns{
		Open:   "OPNPRC_IDX",
		High:   "HGPRC_IDX",
		Low:    "LWPRC_IDX",
		Close:  "CLSPRC_IDX",
		Volume: "ACC_TRDVOL",
	}

	// TRDVAL_TOT is deliberately absent.
	InvestorColumns = []InvestorColumn{
		{Type: entity.InvestorInstitutionalTotal, Net: "TRDVAL1"},
		{Type: entity.InvestorOtherCorporate, Net: "TRDVAL2"},
		{Type: entity.InvestorIndividual, Net: "TRDVAL3"},
		{Type: entity.InvestorForeign, Net: "TRDVAL4"},
	}
)
