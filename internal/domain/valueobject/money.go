package valueobject

import (
	"fmt"

	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// Money хранит денежную сумму в минорных единицах валюты (копейки, центы).
// Арифметика только целочисленная, чтобы разбиение на этапы не накапливало
// ошибок округления.
type Money struct {
	Amount   int64
	Currency string
}

func NewMoney(amount int64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, apperror.New(apperror.ErrCodeValidation, "сумма не может быть отрицательной")
	}
	if currency == "" {
		currency = "RUB"
	}
	return Money{Amount: amount, Currency: currency}, nil
}

func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, apperror.New(apperror.ErrCodeValidation, "валюты не совпадают")
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, apperror.New(apperror.ErrCodeValidation, "валюты не совпадают")
	}
	if other.Amount > m.Amount {
		return Money{}, apperror.New(apperror.ErrCodeOverRelease, "сумма списания превышает остаток")
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.Amount/100, m.Amount%100, m.Currency)
}
