package domain

import "strings"

// Kind tags an item as countable stock (Retail) or binary availability (Produce).
type Kind string

const (
	KindRetail  Kind = "Retail"
	KindProduce Kind = "Produce"
)

// Per-item cart caps.
const (
	MaxRetailPerItem  = 15
	MaxProducePerItem = 10
)

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.TrimSpace(s)) {
	case KindRetail:
		return KindRetail, nil
	case KindProduce:
		return KindProduce, nil
	}
	return "", Validation("Invalid kind provided")
}

func (k Kind) Validate() error {
	_, err := ParseKind(string(k))
	return err
}

// Cap is the maximum quantity of one item of this kind a cart may hold.
func (k Kind) Cap() int {
	if k == KindProduce {
		return MaxProducePerItem
	}
	return MaxRetailPerItem
}
