package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Пределы типа NUMERIC в PostgreSQL.
const (
	maxAmountIntegerDigits = 131072
	maxAmountScale         = 16383
)

// ErrAmountOutOfRange — денежное значение не помещается в NUMERIC.
var ErrAmountOutOfRange = errors.New("amount out of range")

// CheckAmount проверяет порядок числа, не разворачивая его в строку.
// Значения вроде 1e50000000 дёшево парсятся, но их вывод занимает мегабайты.
func CheckAmount(d decimal.Decimal) error {
	exp := int64(d.Exponent())
	if exp < -maxAmountScale {
		return fmt.Errorf("%w: scale %d exceeds %d", ErrAmountOutOfRange, -exp, maxAmountScale)
	}

	coefficient := d.Coefficient()
	digits := int64(len(coefficient.Abs(coefficient).String()))
	if digits+exp > maxAmountIntegerDigits {
		return fmt.Errorf("%w: more than %d integer digits", ErrAmountOutOfRange, maxAmountIntegerDigits)
	}
	return nil
}

// UnmarshalJSON отклоняет unit_price вне диапазона NUMERIC.
func (i *OrderItem) UnmarshalJSON(data []byte) error {
	type plain OrderItem
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if err := CheckAmount(p.UnitPrice); err != nil {
		return fmt.Errorf("unit_price: %w", err)
	}
	*i = OrderItem(p)
	return nil
}

// UnmarshalJSON отклоняет total_amount вне диапазона NUMERIC.
// Позиции проверяются собственным UnmarshalJSON.
func (o *Order) UnmarshalJSON(data []byte) error {
	type plain Order
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if err := CheckAmount(p.TotalAmount); err != nil {
		return fmt.Errorf("total_amount: %w", err)
	}
	*o = Order(p)
	return nil
}
