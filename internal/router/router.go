// Package router сопоставляет ключ раздела с таблицей хранения и приводит
// данные формы к виду строки таблицы.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmeshcher/dailyledger/internal/model"
)

// ErrPayloadMismatch возвращается, если вариант данных не соответствует разделу ключа.
var ErrPayloadMismatch = errors.New("payload does not match section")

// Route описывает выбранную по ключу раздела таблицу.
type Route struct {
	Section model.Section
	Table   model.Table
}

var routes = []struct {
	prefix string
	route  Route
}{
	{prefix: "daily", route: Route{Section: model.SectionDaily, Table: model.TableDaily}},
	{prefix: "outlet", route: Route{Section: model.SectionOutlet, Table: model.TableOutlet}},
	{prefix: "distribution", route: Route{Section: model.SectionDistribution, Table: model.TableDistribution}},
}

// Resolve выбирает маршрут записи по ключу вида "outlet-bandepalya".
// Для ключа без известного префикса возвращает false.
func Resolve(sectionKey string) (Route, bool) {
	for _, r := range routes {
		if strings.HasPrefix(sectionKey, r.prefix+"-") {
			return r.route, true
		}
	}
	return Route{}, false
}

// QueryTable выбирает таблицу для чтения по префиксу ("daily", "outlet", ...).
func QueryTable(prefix string) (model.Table, bool) {
	for _, r := range routes {
		if strings.HasPrefix(prefix, r.prefix) {
			return r.route.Table, true
		}
	}
	return "", false
}

// NormalizeDate отбрасывает время суток, оставляя дату в UTC. Без даты берётся now.
func NormalizeDate(t *time.Time, now time.Time) model.Date {
	if t == nil {
		return model.NewDate(now)
	}
	return model.NewDate(*t)
}

// Shape приводит данные формы к строке таблицы маршрута. Функция не имеет
// скрытого состояния: одинаковые аргументы дают одинаковый результат.
func (r Route) Shape(owner string, p model.Payload, now time.Time) (model.Record, error) {
	if p == nil || p.Section() != r.Section {
		return nil, ErrPayloadMismatch
	}

	switch v := p.(type) {
	case model.DailyEntry:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal daily payload: %w", err)
		}
		return model.DailyRecord{
			Owner:    owner,
			DataType: v.Type,
			Date:     NormalizeDate(v.Date, now),
			Payload:  data,
		}, nil
	case model.OutletEntry:
		return model.OutletRecord{
			Owner:        owner,
			OutletName:   firstNonEmpty(v.OutletName, v.Outlet),
			Date:         NormalizeDate(v.Date, now),
			OpeningStock: v.OpeningStock,
			ClosingStock: v.ClosingStock,
			CashPayment:  v.CashPayment,
			PhotoURL:     v.PhotoURL,
		}, nil
	case model.DistributionEntry:
		return model.DistributionRecord{
			Owner:              owner,
			DistributionCenter: firstNonEmpty(v.DistributionCenter, v.Center),
			Date:               NormalizeDate(v.Date, now),
			CashPayment:        v.CashPayment,
			PhotoURL:           v.PhotoURL,
		}, nil
	}

	return nil, ErrPayloadMismatch
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
