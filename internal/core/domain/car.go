package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CarType string

const (
	CarTypeSedan     CarType = "SEDAN"
	CarTypeSUV       CarType = "SUV"
	CarTypeHatchback CarType = "HATCHBACK"
	CarTypeUniversal CarType = "UNIVERSAL"
)

func (t CarType) Valid() bool {
	switch t {
	case CarTypeSedan, CarTypeSUV, CarTypeHatchback, CarTypeUniversal:
		return true
	}
	return false
}

// Car is a rentable model. Inventory counts the units currently available;
// individual units are not tracked.
type Car struct {
	ID        int64           `db:"id" json:"id"`
	Brand     string          `db:"brand" json:"brand"`
	Model     string          `db:"model" json:"model"`
	Type      CarType         `db:"type" json:"type"`
	Inventory int             `db:"inventory" json:"inventory"`
	DailyFee  decimal.Decimal `db:"daily_fee" json:"daily_fee"`
	CreatedAt time.Time       `db:"created_at" json:"-"`
	UpdatedAt time.Time       `db:"updated_at" json:"-"`
}

type User struct {
	ID        int64  `db:"id" json:"id"`
	Email     string `db:"email" json:"email"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
}
