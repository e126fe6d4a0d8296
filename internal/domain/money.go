package domain

import "github.com/shopspring/decimal"

// MoneyPlaces — число знаков после запятой для всех денежных сумм.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney округляет сумму до копеек, половина округляется от нуля.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Percent возвращает part/whole*100 с округлением до сотых; 0, если whole равен нулю.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(MoneyPlaces)
}

// MinorUnits переводит сумму в минимальные единицы (центы) для платёжного шлюза.
func MinorUnits(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}
