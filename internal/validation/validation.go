package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	notesync "github.com/hyperengineering/notesync/internal/sync"
)

const (
	// MaxInstanceIDLength bounds the instance id sent by a peer.
	MaxInstanceIDLength = 64
	// MaxEntityNameLength bounds entityName.
	MaxEntityNameLength = 64
	// MaxEntityIDLength bounds entityId and changeId.
	MaxEntityIDLength = 256
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateIdentifier runs the required, length and null-byte checks and
// returns the first failure.
func ValidateIdentifier(field, value string, max int) *ValidationError {
	if err := ValidateRequired(field, value); err != nil {
		return err
	}
	if err := ValidateMaxLength(field, value, max); err != nil {
		return err
	}
	return ValidateNoNullBytes(field, value)
}

// ValidateUpdateRequest checks the envelope and every record of a pushed
// batch. The batch is applied atomically, so any error rejects all of it.
func ValidateUpdateRequest(req notesync.UpdateRequest) []ValidationError {
	var c Collector
	c.Add(ValidateIdentifier("instanceId", req.InstanceID, MaxInstanceIDLength))
	for i, rec := range req.Entities {
		for _, err := range ValidateRecord(i, rec) {
			c.Add(&err)
		}
	}
	return c.Errors()
}

// ValidateRecord checks one entity change record. Rows of table kinds must
// carry the same id as the change that describes them.
func ValidateRecord(index int, rec notesync.EntityChangeRecord) []ValidationError {
	prefix := fmt.Sprintf("entities[%d].entityChange.", index)
	ec := rec.EntityChange

	var c Collector
	c.Add(ValidateIdentifier(prefix+"entityName", ec.EntityName, MaxEntityNameLength))
	c.Add(ValidateIdentifier(prefix+"entityId", ec.EntityID, MaxEntityIDLength))
	c.Add(ValidateIdentifier(prefix+"changeId", ec.ChangeID, MaxEntityIDLength))

	if row, ok := rec.Entity.(notesync.TableRow); ok && ec.EntityID != "" && row.EntityID() != ec.EntityID {
		c.Add(&ValidationError{
			Field:   fmt.Sprintf("entities[%d].entity", index),
			Message: fmt.Sprintf("row id %q does not match entityId %q", row.EntityID(), ec.EntityID),
		})
	}
	return c.Errors()
}
