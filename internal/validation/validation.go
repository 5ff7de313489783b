// Package validation содержит функции валидации входных данных форм.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrNotANumber возвращается, если значение поля нельзя разобрать как число.
var ErrNotANumber = errors.New("value is not a number")

// IsNonEmpty проверяет, что строка содержит непробельные символы.
func IsNonEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}

// ParseNumber разбирает десятичное число из поля формы.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrNotANumber)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrNotANumber, s)
	}

	return v, nil
}

// IsNumber проверяет, что строку можно разобрать как конечное число.
func IsNumber(s string) bool {
	_, err := ParseNumber(s)
	return err == nil
}

// Amount числовое поле формы. Принимает JSON-число или строку с числом;
// пустая строка трактуется как ноль, как в незаполненных полях таблиц.
type Amount float64

// UnmarshalJSON разбирает Amount из числа или строки.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*a = 0
			return nil
		}
		v, err := ParseNumber(s)
		if err != nil {
			return err
		}
		*a = Amount(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%w: %s", ErrNotANumber, string(b))
	}
	*a = Amount(v)
	return nil
}
