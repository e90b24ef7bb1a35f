package reconcile

import (
	"errors"
	"fmt"
)

// ErrUnsupportedEntity is returned by an Eraser for entity names outside its
// allow-list. The engine logs it and continues with the batch.
var ErrUnsupportedEntity = errors.New("entity cannot be erased")

// MalformedEntryError reports a non-erase change that arrived without the
// row it describes. It aborts the batch.
type MalformedEntryError struct {
	EntityName string
	EntityID   string
	Change     string
}

func (e *MalformedEntryError) Error() string {
	return fmt.Sprintf("empty entity row for %s %s: %s", e.EntityName, e.EntityID, e.Change)
}

// EntryError wraps the failure of one batch entry with its identity.
type EntryError struct {
	EntityName string
	EntityID   string
	Err        error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("apply %s %s: %v", e.EntityName, e.EntityID, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }
