package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidFieldValue is returned by Field.Assign when a value has the wrong type.
var ErrInvalidFieldValue = errors.New("invalid field value")

// FieldType is the scalar type stored for a field.
type FieldType int

const (
	FieldString FieldType = iota
	FieldNumber
)

// Field maps one external name onto an entity field of a given type.
type Field struct {
	Name string
	Type FieldType
}

// Assign converts v to the field's type and stores it in dst.
// Strings are accepted for numbers; empty strings are stored as-is so
// required-field validation can reject them.
func (f Field) Assign(dst map[string]any, v any) error {
	switch f.Type {
	case FieldNumber:
		switch n := v.(type) {
		case float64:
			if math.IsNaN(n) || math.IsInf(n, 0) {
				return fmt.Errorf("%w: %s must be a finite number", ErrInvalidFieldValue, f.Name)
			}
			dst[f.Name] = n
		case string:
			s := strings.TrimSpace(n)
			if s == "" {
				return nil
			}
			parsed, err := strconv.ParseFloat(s, 64)
			// NaN and infinities parse but cannot be encoded as JSON.
			if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
				return fmt.Errorf("%w: %s must be numeric", ErrInvalidFieldValue, f.Name)
			}
			dst[f.Name] = parsed
		case nil:
		default:
			return fmt.Errorf("%w: %s must be numeric", ErrInvalidFieldValue, f.Name)
		}
	default:
		switch s := v.(type) {
		case string:
			dst[f.Name] = s
		case float64:
			dst[f.Name] = strconv.FormatFloat(s, 'f', -1, 64)
		case bool:
			dst[f.Name] = strconv.FormatBool(s)
		case nil:
		default:
			return fmt.Errorf("%w: %s must be a scalar", ErrInvalidFieldValue, f.Name)
		}
	}
	return nil
}

// Schema describes how external input maps onto the entities of one kind.
type Schema struct {
	Kind Kind
	// AttachmentField is the multipart part name carrying the image.
	AttachmentField string
	// FormFields maps lower-cased multipart part names to entity fields.
	FormFields map[string]Field
	// MessageFields maps lower-cased queue/JSON keys to entity fields.
	MessageFields map[string]Field
	// Required lists entity fields that must be non-empty on create and update.
	Required []string
}

// FormField looks up a multipart part name, case-insensitively.
func (s Schema) FormField(name string) (Field, bool) {
	f, ok := s.FormFields[strings.ToLower(name)]
	return f, ok
}

// MessageField looks up a JSON key, case-insensitively.
func (s Schema) MessageField(key string) (Field, bool) {
	f, ok := s.MessageFields[strings.ToLower(key)]
	return f, ok
}

// IsAttachmentField reports whether a multipart part name is the image field.
func (s Schema) IsAttachmentField(name string) bool {
	return strings.EqualFold(name, s.AttachmentField)
}

// Missing returns the required fields that are absent or blank in fields.
func (s Schema) Missing(fields map[string]any) []string {
	var missing []string
	for _, name := range s.Required {
		v, ok := fields[name]
		if !ok || v == nil {
			missing = append(missing, name)
			continue
		}
		if str, isStr := v.(string); isStr && strings.TrimSpace(str) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

var schemas = map[Kind]Schema{
	KindOrder: {
		Kind:            KindOrder,
		AttachmentField: "OrderImage",
		FormFields: map[string]Field{
			"name":        {Name: "OrderName"},
			"description": {Name: "OrderDescription"},
			"type":        {Name: "OrderType"},
		},
		MessageFields: messageFields(
			Field{Name: "OrderName"},
			Field{Name: "OrderDescription"},
			Field{Name: "OrderType"},
			Field{Name: "OrderStatus"},
			Field{Name: "PaymentOption"},
		),
		Required: []string{"OrderName", "OrderDescription"},
	},
	KindProduct: {
		Kind:            KindProduct,
		AttachmentField: "ProductImage",
		FormFields: map[string]Field{
			"name":        {Name: "ProductName"},
			"description": {Name: "ProductDescription"},
			"type":        {Name: "ProductType"},
			"price":       {Name: "ProductPrice", Type: FieldNumber},
		},
		MessageFields: messageFields(
			Field{Name: "ProductName"},
			Field{Name: "ProductDescription"},
			Field{Name: "ProductType"},
			Field{Name: "ProductPrice", Type: FieldNumber},
			Field{Name: "Quantity", Type: FieldNumber},
		),
		Required: []string{"ProductName", "ProductDescription"},
	},
	KindCustomer: {
		Kind:            KindCustomer,
		AttachmentField: "CustomerImage",
		FormFields: map[string]Field{
			"name":        {Name: "CustomerName"},
			"description": {Name: "Surname"},
			"surname":     {Name: "Surname"},
			"email":       {Name: "Email"},
		},
		MessageFields: messageFields(
			Field{Name: "CustomerName"},
			Field{Name: "Surname"},
			Field{Name: "Email"},
			Field{Name: "PhoneNumber"},
			Field{Name: "Address"},
			Field{Name: "City"},
			Field{Name: "Country"},
		),
		Required: []string{"CustomerName", "Surname"},
	},
}

func messageFields(fields ...Field) map[string]Field {
	m := make(map[string]Field, len(fields))
	for _, f := range fields {
		m[strings.ToLower(f.Name)] = f
	}
	return m
}

// SchemaFor returns the schema registered for kind.
func SchemaFor(kind Kind) (Schema, bool) {
	s, ok := schemas[kind]
	return s, ok
}
