package model

import "time"

// Payload закрытое множество вариантов данных формы, по одному на раздел.
type Payload interface {
	Section() Section
	isPayload()
}

// DailyEntry данные одной из форм ежедневного раздела.
// Заполнено ровно одно из полей NECCRate, Payments, Damages, Purchases в зависимости от Type.
type DailyEntry struct {
	Type      DailyType          `json:"type"`
	Date      *time.Time         `json:"date,omitempty"`
	NECCRate  *float64           `json:"neccRate,omitempty"`
	Payments  map[string]float64 `json:"payments,omitempty"`
	Damages   map[string]float64 `json:"damages,omitempty"`
	Purchases map[string]float64 `json:"purchases,omitempty"`
}

func (DailyEntry) Section() Section { return SectionDaily }
func (DailyEntry) isPayload()       {}

// OutletEntry данные формы торговой точки.
type OutletEntry struct {
	OutletName   string
	Outlet       string
	Date         *time.Time
	OpeningStock float64
	ClosingStock float64
	CashPayment  float64
	PhotoURL     string
}

func (OutletEntry) Section() Section { return SectionOutlet }
func (OutletEntry) isPayload()       {}

// DistributionEntry данные формы распределительного центра.
type DistributionEntry struct {
	DistributionCenter string
	Center             string
	Date               *time.Time
	CashPayment        float64
	PhotoURL           string
}

func (DistributionEntry) Section() Section { return SectionDistribution }
func (DistributionEntry) isPayload()       {}
