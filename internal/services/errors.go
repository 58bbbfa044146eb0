// Package services implements the business logic for credit accounting,
// token tracking, request orchestration, activity logging, and paid
// influence actions. This file centralizes common service-level error
// values so they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrStateNotFound indicates that no credit state row exists yet.
	ErrStateNotFound = errors.New("credit state not found")

	// ErrInsufficientBalance is returned when an auto-purchase is due but
	// the tracked balance cannot cover the purchase amount.
	ErrInsufficientBalance = errors.New("insufficient balance for auto-purchase")

	// ErrRequestNotFound indicates that the requested job does not exist.
	ErrRequestNotFound = errors.New("request not found")

	// ErrEmptyPrompt is returned when a submitted request carries an empty
	// prompt.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrPromptTooLong is returned when a submitted prompt exceeds the
	// maximum configured rune length.
	ErrPromptTooLong = errors.New("prompt too long")

	// ErrInvalidService is returned when an influence action name is not in
	// the price list.
	ErrInvalidService = errors.New("unknown influence service")

	// ErrInvalidAmount is returned when a credit or sponsorship amount is
	// zero, negative, or unparsable.
	ErrInvalidAmount = errors.New("amount must be a positive number")

	// ErrDuplicateSponsorship is returned when a sponsorship with the same
	// idempotency key was already queued by the same caller.
	ErrDuplicateSponsorship = errors.New("sponsorship already queued")

	// ErrStateConflict is returned when optimistic-lock retries on the
	// credit state row are exhausted.
	ErrStateConflict = errors.New("credit state concurrently modified")

	// ErrInvalidCallback is returned when a classification callback is
	// missing its request ID or classification.
	ErrInvalidCallback = errors.New("callback missing request_id or classification")

	// ErrInvalidPayload is returned when a stored answer body is empty or
	// not valid JSON.
	ErrInvalidPayload = errors.New("payload must be valid JSON")

	// ErrNoAnswer indicates the request has no stored deliverable yet.
	ErrNoAnswer = errors.New("no answer available")
)
