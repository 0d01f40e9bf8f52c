package schema

import (
	"errors"
	"fmt"
)

// Remote field defaults.
const (
	DefaultItemType    = "water"
	DefaultPaymentType = "Cash"
)

// Kind names a record kind. Its value doubles as the remote collection name.
type Kind string

const (
	KindCategory Kind = "category"
	KindItem     Kind = "item"
	KindSale     Kind = "sales"
)

// Kinds lists every record kind in cascade order (parents first).
var Kinds = []Kind{KindCategory, KindItem, KindSale}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCategory, KindItem, KindSale:
		return true
	}
	return false
}

// Document is the loosely typed field map of a remote document.
type Document map[string]any

// Errors returned while decoding remote documents.
var (
	// ErrMissingName is returned when a category or item document has no
	// usable name. Such documents are skipped.
	ErrMissingName = errors.New("missing name")

	// ErrMissingID is returned when a document is decoded without an id.
	ErrMissingID = errors.New("missing id")

	// ErrInvalidLineItems is returned when a sale's line items cannot be parsed.
	ErrInvalidLineItems = errors.New("invalid line items")

	// ErrInvalidValue is returned when a field decodes but breaks a record
	// invariant, such as a negative price or total.
	ErrInvalidValue = errors.New("invalid value")
)

// DecodeError describes why a remote document could not become a record.
type DecodeError struct {
	Kind Kind
	ID   string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s %q: %v", e.Kind, e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(kind Kind, id string, err error) error {
	return &DecodeError{Kind: kind, ID: id, Err: err}
}
