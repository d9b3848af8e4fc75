// Package errors provides custom error types for the syncbridge system.
// Each failure the sync core can surface has a sentinel for errors.Is checks
// and a typed error carrying the identifiers involved.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is and As are the standard library helpers, re-exported so callers need a
// single errors import.
var (
	Is = errors.Is
	As = errors.As
)

// Sentinel errors for the sync core.
var (
	// ErrObjectNotFound indicates an object is not registered or no longer present.
	ErrObjectNotFound = errors.New("object not found")

	// ErrObjectNotSupported indicates an internal object type is not registered for syncing.
	ErrObjectNotSupported = errors.New("object not supported")

	// ErrObjectDeleted indicates the identity link for an object was soft-deleted.
	ErrObjectDeleted = errors.New("object deleted")

	// ErrFieldNotFound indicates a field is absent from a report or mapping manual.
	ErrFieldNotFound = errors.New("field not found")

	// ErrConflictUnresolved indicates a judgement mode could not pick a winner.
	ErrConflictUnresolved = errors.New("conflict unresolved")

	// ErrHandlerNotSupported indicates no notification handler is registered.
	ErrHandlerNotSupported = errors.New("handler not supported")

	// ErrIntegrationNotFound indicates an integration is not configured.
	ErrIntegrationNotFound = errors.New("integration not found")

	// ErrNotFound indicates that a requested resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// ObjectNotFoundError represents an object missing from a registry or store.
type ObjectNotFoundError struct {
	Object string
	ID     string
}

// Error implements the error interface.
func (e *ObjectNotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("object %s:%s not found", e.Object, e.ID)
	}
	return fmt.Sprintf("object %s not found", e.Object)
}

// Is implements errors.Is support.
func (e *ObjectNotFoundError) Is(target error) bool {
	return target == ErrObjectNotFound || target == ErrNotFound
}

// NewObjectNotFoundError creates a new ObjectNotFoundError.
func NewObjectNotFoundError(object, id string) *ObjectNotFoundError {
	return &ObjectNotFoundError{Object: object, ID: id}
}

// ObjectNotSupportedError represents an unregistered internal object type.
type ObjectNotSupportedError struct {
	Integration string
	Object      string
}

// Error implements the error interface.
func (e *ObjectNotSupportedError) Error() string {
	if e.Integration != "" {
		return fmt.Sprintf("%s does not support a %s object", e.Integration, e.Object)
	}
	return fmt.Sprintf("object %s is not supported", e.Object)
}

// Is implements errors.Is support.
func (e *ObjectNotSupportedError) Is(target error) bool {
	return target == ErrObjectNotSupported
}

// NewObjectNotSupportedError creates a new ObjectNotSupportedError.
func NewObjectNotSupportedError(integration, object string) *ObjectNotSupportedError {
	return &ObjectNotSupportedError{Integration: integration, Object: object}
}

// ObjectDeletedError represents a lookup against a soft-deleted mapping.
type ObjectDeletedError struct {
	Integration string
	Object      string
	ID          string
}

// Error implements the error interface.
func (e *ObjectDeletedError) Error() string {
	return fmt.Sprintf("%s object %s:%s has been deleted", e.Integration, e.Object, e.ID)
}

// Is implements errors.Is support.
func (e *ObjectDeletedError) Is(target error) bool {
	return target == ErrObjectDeleted
}

// NewObjectDeletedError creates a new ObjectDeletedError.
func NewObjectDeletedError(integration, object, id string) *ObjectDeletedError {
	return &ObjectDeletedError{Integration: integration, Object: object, ID: id}
}

// FieldNotFoundError represents a field missing from an object.
type FieldNotFoundError struct {
	Object string
	Field  string
}

// Error implements the error interface.
func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field %s not found for object %s", e.Field, e.Object)
}

// Is implements errors.Is support.
func (e *FieldNotFoundError) Is(target error) bool {
	return target == ErrFieldNotFound
}

// NewFieldNotFoundError creates a new FieldNotFoundError.
func NewFieldNotFoundError(object, field string) *FieldNotFoundError {
	return &FieldNotFoundError{Object: object, Field: field}
}

// ConflictUnresolvedError represents a judgement mode that could not decide.
type ConflictUnresolvedError struct {
	Mode   string
	Reason string
}

// Error implements the error interface.
func (e *ConflictUnresolvedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("conflict unresolved using %s: %s", e.Mode, e.Reason)
	}
	return fmt.Sprintf("conflict unresolved using %s", e.Mode)
}

// Is implements errors.Is support.
func (e *ConflictUnresolvedError) Is(target error) bool {
	return target == ErrConflictUnresolved
}

// NewConflictUnresolvedError creates a new ConflictUnresolvedError.
func NewConflictUnresolvedError(mode, reason string) *ConflictUnresolvedError {
	return &ConflictUnresolvedError{Mode: mode, Reason: reason}
}

// HandlerNotSupportedError represents a missing notification handler.
type HandlerNotSupportedError struct {
	Handler string
	Object  string
}

// Error implements the error interface.
func (e *HandlerNotSupportedError) Error() string {
	return fmt.Sprintf("%s does not have a notification handler for %s", e.Handler, e.Object)
}

// Is implements errors.Is support.
func (e *HandlerNotSupportedError) Is(target error) bool {
	return target == ErrHandlerNotSupported
}

// NewHandlerNotSupportedError creates a new HandlerNotSupportedError.
func NewHandlerNotSupportedError(handler, object string) *HandlerNotSupportedError {
	return &HandlerNotSupportedError{Handler: handler, Object: object}
}

// IntegrationNotFoundError represents an integration that is not configured.
type IntegrationNotFoundError struct {
	Integration string
}

// Error implements the error interface.
func (e *IntegrationNotFoundError) Error() string {
	return fmt.Sprintf("integration %s not found", e.Integration)
}

// Is implements errors.Is support.
func (e *IntegrationNotFoundError) Is(target error) bool {
	return target == ErrIntegrationNotFound || target == ErrNotFound
}

// NewIntegrationNotFoundError creates a new IntegrationNotFoundError.
func NewIntegrationNotFoundError(integration string) *IntegrationNotFoundError {
	return &IntegrationNotFoundError{Integration: integration}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// ResourceError represents a failed collaborator operation, such as a
// mapping store write or a dispatch to an object sink.
type ResourceError struct {
	Operation string // "save", "update", "dispatch", "lock"
	Resource  string // "mapping", "contact", "handler"
	ID        string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ResourceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("failed to %s %s %s: %s", e.Operation, e.Resource, e.ID, e.Message)
	}
	return fmt.Sprintf("failed to %s %s: %s", e.Operation, e.Resource, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NewResourceError creates a new ResourceError
func NewResourceError(operation, resource, id string, err error) *ResourceError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ResourceError{
		Operation: operation,
		Resource:  resource,
		ID:        id,
		Message:   message,
		Err:       err,
	}
}

// ParseError represents an error when parsing manuals, reports, or config.
type ParseError struct {
	Format  string // "json", "yaml"
	File    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Helper functions for error checking

// IsObjectNotFound checks if an error is an object not found error.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// IsObjectNotSupported checks if an error is an object not supported error.
func IsObjectNotSupported(err error) bool {
	return errors.Is(err, ErrObjectNotSupported)
}

// IsObjectDeleted checks if an error is an object deleted error.
func IsObjectDeleted(err error) bool {
	return errors.Is(err, ErrObjectDeleted)
}

// IsFieldNotFound checks if an error is a field not found error.
func IsFieldNotFound(err error) bool {
	return errors.Is(err, ErrFieldNotFound)
}

// IsConflictUnresolved checks if an error is a conflict unresolved error.
func IsConflictUnresolved(err error) bool {
	return errors.Is(err, ErrConflictUnresolved)
}

// IsHandlerNotSupported checks if an error is a handler not supported error.
func IsHandlerNotSupported(err error) bool {
	return errors.Is(err, ErrHandlerNotSupported)
}

// IsIntegrationNotFound checks if an error is an integration not found error.
func IsIntegrationNotFound(err error) bool {
	return errors.Is(err, ErrIntegrationNotFound)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// Helper wrapping functions for common patterns

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapResource wraps an error as a ResourceError
func WrapResource(operation, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	return NewResourceError(operation, resource, id, err)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return &ParseError{Format: format, File: file, Message: err.Error(), Err: err}
}
