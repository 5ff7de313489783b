package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mmeshcher/dailyledger/internal/model"
	"github.com/mmeshcher/dailyledger/internal/validation"
)

// ErrInvalidPayload возвращается, если данные формы не прошли проверку.
var ErrInvalidPayload = errors.New("invalid payload")

type dailyForm struct {
	Type      string                       `json:"type"`
	Date      *string                      `json:"date"`
	NECCRate  *validation.Amount           `json:"neccRate"`
	Payments  map[string]validation.Amount `json:"payments"`
	Damages   map[string]validation.Amount `json:"damages"`
	Purchases map[string]validation.Amount `json:"purchases"`
}

type outletForm struct {
	OutletName   string             `json:"outletName"`
	Outlet       string             `json:"outlet"`
	Date         *string            `json:"date"`
	OpeningStock *validation.Amount `json:"openingStock"`
	ClosingStock *validation.Amount `json:"closingStock"`
	CashPayment  *validation.Amount `json:"cashPayment"`
	PhotoURL     string             `json:"photoUrl"`
}

type distributionForm struct {
	DistributionCenter string             `json:"distributionCenter"`
	Center             string             `json:"center"`
	Date               *string            `json:"date"`
	CashPayment        *validation.Amount `json:"cashPayment"`
	PhotoURL           string             `json:"photoUrl"`
}

// DecodePayload разбирает тело формы в вариант данных, выбранный по префиксу ключа.
// Для ключа без известного префикса возвращает (nil, nil).
func DecodePayload(sectionKey string, raw []byte) (model.Payload, error) {
	route, ok := Resolve(sectionKey)
	if !ok {
		return nil, nil
	}

	switch route.Section {
	case model.SectionDaily:
		var f dailyForm
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return f.toEntry()
	case model.SectionOutlet:
		var f outletForm
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return f.toEntry()
	case model.SectionDistribution:
		var f distributionForm
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return f.toEntry()
	}

	return nil, nil
}

func (f dailyForm) toEntry() (model.Payload, error) {
	date, err := parseFormDate(f.Date)
	if err != nil {
		return nil, err
	}

	e := model.DailyEntry{
		Type:      model.DailyType(f.Type),
		Date:      date,
		Payments:  amounts(f.Payments),
		Damages:   amounts(f.Damages),
		Purchases: amounts(f.Purchases),
	}

	switch e.Type {
	case model.DailyNECCRate:
		if f.NECCRate == nil {
			return nil, fmt.Errorf("%w: neccRate is required", ErrInvalidPayload)
		}
		v := float64(*f.NECCRate)
		e.NECCRate = &v
	case model.DailyDigitalPayments, model.DailyDamages, model.DailyPurchase:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidPayload, f.Type)
	}

	return e, nil
}

func (f outletForm) toEntry() (model.Payload, error) {
	if !validation.IsNonEmpty(f.OutletName) && !validation.IsNonEmpty(f.Outlet) {
		return nil, fmt.Errorf("%w: outletName is required", ErrInvalidPayload)
	}
	if f.OpeningStock == nil || f.ClosingStock == nil || f.CashPayment == nil {
		return nil, fmt.Errorf("%w: openingStock, closingStock and cashPayment are required", ErrInvalidPayload)
	}

	date, err := parseFormDate(f.Date)
	if err != nil {
		return nil, err
	}

	return model.OutletEntry{
		OutletName:   f.OutletName,
		Outlet:       f.Outlet,
		Date:         date,
		OpeningStock: float64(*f.OpeningStock),
		ClosingStock: float64(*f.ClosingStock),
		CashPayment:  float64(*f.CashPayment),
		PhotoURL:     f.PhotoURL,
	}, nil
}

func (f distributionForm) toEntry() (model.Payload, error) {
	if !validation.IsNonEmpty(f.DistributionCenter) && !validation.IsNonEmpty(f.Center) {
		return nil, fmt.Errorf("%w: distributionCenter is required", ErrInvalidPayload)
	}
	if f.CashPayment == nil {
		return nil, fmt.Errorf("%w: cashPayment is required", ErrInvalidPayload)
	}

	date, err := parseFormDate(f.Date)
	if err != nil {
		return nil, err
	}

	return model.DistributionEntry{
		DistributionCenter: f.DistributionCenter,
		Center:             f.Center,
		Date:               date,
		CashPayment:        float64(*f.CashPayment),
		PhotoURL:           f.PhotoURL,
	}, nil
}

// localDateTimeLayout время без смещения, как его отдаёт datetime-local.
const localDateTimeLayout = "2006-01-02T15:04:05.999999999"

// parseFormDate принимает ISO-время из формы или голую дату YYYY-MM-DD.
// Время без смещения считается UTC.
func parseFormDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, *s); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation(localDateTimeLayout, *s, time.UTC); err == nil {
		return &t, nil
	}

	d, err := model.ParseDate(*s)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", ErrInvalidPayload, *s)
	}
	return &d.Time, nil
}

func amounts(in map[string]validation.Amount) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = float64(v)
	}
	return out
}
