package domain

import "github.com/shopspring/decimal"

type User struct {
	ID       string
	FullName string
}

type Vendor struct {
	ID       string
	FullName string
	UniID    string
}

type University struct {
	ID   string
	Name string
}

type Item struct {
	ID    string
	Kind  Kind
	UniID string
	Name  string
	Price decimal.Decimal
	Image string
	Unit  string
	Type  string
}
