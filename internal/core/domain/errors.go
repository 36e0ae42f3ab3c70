package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidTitle   = errors.New("invalid title")
	ErrInvalidLabel   = errors.New("invalid label")
	ErrInvalidVersion = errors.New("invalid version")
	ErrDuplicateLabel = errors.New("label already in use")
)

// Validation failures. WFS clients and the CSV validator collect these into
// their results instead of returning them.
var (
	ErrFetch        = errors.New("fetch failed")
	ErrParse        = errors.New("malformed xml")
	ErrCapabilities = errors.New("capabilities error")
	ErrXPath        = errors.New("invalid xpath expression")
	ErrSchema       = errors.New("schema error")
	ErrNoElements   = errors.New("No elements were validated.")
	ErrUploadFormat = errors.New("upload format error")
	ErrUnknownLayer = errors.New("unknown layer")
)

// ErrSchemaViolation is returned when a document does not conform to a
// compiled schema. Errors holds one message per violation.
type ErrSchemaViolation struct {
	Errors []string
}

func (e *ErrSchemaViolation) Error() string {
	return fmt.Sprintf("schema validation failed: %s", strings.Join(e.Errors, "; "))
}
