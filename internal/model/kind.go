package model

import (
	"fmt"
	"strings"
)

// Kind is one of the record kinds accepted by the ingestion pipeline.
type Kind string

const (
	KindOrder    Kind = "Order"
	KindProduct  Kind = "Product"
	KindCustomer Kind = "Customer"
)

// Kinds lists every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindOrder, KindProduct, KindCustomer}
}

// Partition is the fixed partition shared by all entities of the kind.
func (k Kind) Partition() string { return string(k) }

// Slug is the lower-case singular form used in URLs ("order").
func (k Kind) Slug() string { return strings.ToLower(string(k)) }

// Plural is the lower-case plural form used in URLs ("orders").
func (k Kind) Plural() string { return k.Slug() + "s" }

// ParseKind accepts a kind name, slug or plural, case-insensitively.
func ParseKind(s string) (Kind, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, k := range Kinds() {
		if v == k.Slug() || v == k.Plural() {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown record kind %q", s)
}
