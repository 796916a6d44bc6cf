// Package validation holds input limits enforced at the HTTP and CLI
// boundaries.
package validation

import (
	"fmt"

	dErrors "openbadges/pkg/domain-errors"
)

// String element length limits
const (
	// MaxReasonLength bounds a revocation reason.
	MaxReasonLength = 500

	// MaxIDLength bounds issuer and credential identifiers taken from paths.
	MaxIDLength = 2048

	// MaxScopeLength is the maximum length of an individual admin scope.
	MaxScopeLength = 100
)

// Slice element count limits
const (
	// MaxScopes is the maximum number of scopes on one admin token.
	MaxScopes = 10

	// MaxContexts is the maximum number of configured @context entries.
	MaxContexts = 16
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckEachStringLength validates that each string in a slice does not exceed the maximum length.
func CheckEachStringLength(fieldName string, values []string, max int) error {
	for _, v := range values {
		if len(v) > max {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
		}
	}
	return nil
}
