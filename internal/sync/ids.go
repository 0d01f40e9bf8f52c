package sync

import (
	"github.com/google/uuid"

	"github.com/pos-system/possync/internal/schema"
	"github.com/pos-system/possync/internal/store/remote"
)

// IDStrategy decides where a new record's id comes from.
type IDStrategy interface {
	NewID(kind schema.Kind) string
}

// IDFunc adapts a function to IDStrategy.
type IDFunc func(kind schema.Kind) string

// NewID implements IDStrategy.
func (f IDFunc) NewID(kind schema.Kind) string { return f(kind) }

// RemoteAssigned takes ids from the remote store's id format, so local and
// remote copies of a record share one id from the moment it is created.
func RemoteAssigned(store remote.Store) IDStrategy {
	return IDFunc(store.NewID)
}

// LocallyGenerated issues random UUIDs.
var LocallyGenerated IDStrategy = IDFunc(func(schema.Kind) string {
	return uuid.NewString()
})
