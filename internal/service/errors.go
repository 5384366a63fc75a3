package service

import (
	"errors"
	"fmt"

	"retailapi/internal/attachment"
	"retailapi/internal/formdata"
	"retailapi/internal/repository"
)

var (
	// ErrValidation reports missing required fields, a missing image or a mistyped field.
	ErrValidation = errors.New("validation failed")
	// ErrEntityStore wraps entity store failures other than not-found and version conflicts.
	ErrEntityStore = errors.New("entity store failure")
	// ErrDeserialization reports a JSON payload that is not an object of scalar fields.
	ErrDeserialization = errors.New("invalid message payload")
	// ErrUnknownKind is returned for a kind without a registered schema.
	ErrUnknownKind = errors.New("unknown record kind")
	// ErrIDRequired is a validation error for an empty entity id.
	ErrIDRequired = fmt.Errorf("%w: id is required", ErrValidation)

	ErrAttachmentStore  = attachment.ErrStoreFailure
	ErrMalformedRequest = formdata.ErrMalformedRequest
	ErrNotFound         = repository.ErrNotFound
	ErrVersionMismatch  = repository.ErrVersionMismatch
)

// Reason classifies err into a short, stable label for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedRequest):
		return "malformed_request"
	case errors.Is(err, ErrDeserialization):
		return "deserialization"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnknownKind):
		return "unknown_kind"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrVersionMismatch):
		return "version_mismatch"
	case errors.Is(err, ErrAttachmentStore):
		return "attachment_store"
	case errors.Is(err, ErrEntityStore):
		return "entity_store"
	default:
		return "internal"
	}
}

func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrVersionMismatch):
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrEntityStore, op, err)
}
