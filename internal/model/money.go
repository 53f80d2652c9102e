package model

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ToCents переводит сумму в валюте в целые центы с банковским округлением.
func ToCents(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(hundred).RoundBank(0).IntPart()
}

// FromCents переводит центы в сумму в валюте.
func FromCents(cents int64) float64 {
	f, _ := decimal.New(cents, -2).Float64()
	return f
}

// AmountMatches сообщает, совпадает ли amount с суммой в центах с точностью tolerance.
func AmountMatches(amount float64, cents int64, tolerance float64) bool {
	diff := decimal.NewFromFloat(amount).Sub(decimal.New(cents, -2)).Abs()
	return diff.LessThanOrEqual(decimal.NewFromFloat(tolerance))
}

// WholeUnits переводит центы в целые единицы валюты с округлением вверх.
func WholeUnits(cents int64) int64 {
	return decimal.New(cents, -2).Ceil().IntPart()
}
