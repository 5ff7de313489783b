package model

import (
	"encoding/json"
	"time"
)

// Table задаёт таблицу хранения записей.
type Table string

const (
	TableDaily        Table = "daily_data"
	TableOutlet       Table = "outlet_data"
	TableDistribution Table = "distribution_data"
)

// Record общий контракт сохранённых записей трёх видов.
type Record interface {
	Table() Table
	OwnerID() string
	RecordDate() Date
}

// DailyType дискриминатор ежедневных показателей.
type DailyType string

const (
	DailyNECCRate        DailyType = "necc-rate"
	DailyDigitalPayments DailyType = "digital-payments"
	DailyDamages         DailyType = "daily-damages"
	DailyPurchase        DailyType = "daily-purchase"
)

// DailyRecord строка таблицы daily_data.
type DailyRecord struct {
	ID        int64           `json:"id,omitempty"`
	Owner     string          `json:"user_id"`
	DataType  DailyType       `json:"data_type"`
	Date      Date            `json:"date"`
	Payload   json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

func (r DailyRecord) Table() Table     { return TableDaily }
func (r DailyRecord) OwnerID() string  { return r.Owner }
func (r DailyRecord) RecordDate() Date { return r.Date }

// OutletRecord строка таблицы outlet_data.
type OutletRecord struct {
	ID           int64     `json:"id,omitempty"`
	Owner        string    `json:"user_id"`
	OutletName   string    `json:"outlet_name"`
	Date         Date      `json:"date"`
	OpeningStock float64   `json:"opening_stock"`
	ClosingStock float64   `json:"closing_stock"`
	CashPayment  float64   `json:"cash_payment"`
	PhotoURL     string    `json:"photo_url"`
	CreatedAt    time.Time `json:"created_at"`
}

func (r OutletRecord) Table() Table     { return TableOutlet }
func (r OutletRecord) OwnerID() string  { return r.Owner }
func (r OutletRecord) RecordDate() Date { return r.Date }

// DistributionRecord строка таблицы distribution_data.
type DistributionRecord struct {
	ID                 int64     `json:"id,omitempty"`
	Owner              string    `json:"user_id"`
	DistributionCenter string    `json:"distribution_center"`
	Date               Date      `json:"date"`
	CashPayment        float64   `json:"cash_payment"`
	PhotoURL           string    `json:"photo_url"`
	CreatedAt          time.Time `json:"created_at"`
}

func (r DistributionRecord) Table() Table     { return TableDistribution }
func (r DistributionRecord) OwnerID() string  { return r.Owner }
func (r DistributionRecord) RecordDate() Date { return r.Date }
