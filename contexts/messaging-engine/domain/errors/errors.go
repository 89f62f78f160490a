// Package errors holds the messaging engine's sentinel errors.
package errors

import "errors"

var (
	// ErrAlreadyProcessed marks a provider message id already recorded;
	// callers treat it as a success-skip, never a failure.
	ErrAlreadyProcessed = errors.New("messaging-engine: provider message already processed")

	// ErrNoBinding means no active tenant binding exists for an inbound
	// routing identifier or an outbound tenant id.
	ErrNoBinding = errors.New("messaging-engine: no active tenant binding")

	// ErrOptedOutOrNoBinding names the case where the recipient has opted
	// out or has no binding at all. The outbound send guard reports that
	// case as false with a nil error and does not return this error.
	ErrOptedOutOrNoBinding = errors.New("messaging-engine: recipient opted out or unbound")

	// ErrInvalidSignature means webhook signature validation failed; the
	// only case where the ingress returns non-200.
	ErrInvalidSignature = errors.New("messaging-engine: invalid webhook signature")

	// ErrMalformedPayload means the webhook body was not valid JSON; the
	// other case where the ingress returns non-200.
	ErrMalformedPayload = errors.New("messaging-engine: malformed webhook payload")

	// ErrUnrecognizedShape means the payload didn't match any known
	// provider shape (neither Meta Cloud's `object` root nor Evolution's
	// `event`/`instance` root).
	ErrUnrecognizedShape = errors.New("messaging-engine: unrecognized webhook payload shape")

	// ErrTemplateNotFound is returned by the template registry lookup.
	ErrTemplateNotFound = errors.New("messaging-engine: template not found")
)
