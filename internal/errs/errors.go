package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies domain failures so callers can branch without string matching.
type Kind string

const (
	KindNotFound                Kind = "not_found"
	KindDuplicateItem           Kind = "duplicate_item"
	KindInsufficientStock       Kind = "insufficient_stock"
	KindInsufficientAvailable   Kind = "insufficient_available"
	KindOverRelease             Kind = "over_release"
	KindInfeasible              Kind = "infeasible"
	KindInvalidStatusTransition Kind = "invalid_status_transition"
	KindPolicyNotFound          Kind = "policy_not_found"
	KindWeightOutOfBounds       Kind = "weight_out_of_bounds"
	KindSamplingNotAllowed      Kind = "sampling_not_allowed"
	KindRequiresApproval        Kind = "requires_approval"
	KindAlreadyProcessed        Kind = "already_processed"
	KindExpired                 Kind = "expired"
	KindValidation              Kind = "validation"
)

// Error is the common shape for every domain failure: a kind, a human message,
// and structured fields so callers can render actionable detail.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]interface{}
}

func (e *Error) Error() string {
	return e.Message
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// With attaches a context field and returns the error for chaining.
func (e *Error) With(key string, value interface{}) *Error {
	if e.Fields == nil {
		e.Fields = map[string]interface{}{}
	}
	e.Fields[key] = value
	return e
}

// IsKind reports whether err is (or wraps) a domain error of the given kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// KindOf returns the kind of a domain error, or empty string for foreign errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func NotFound(entity, id string) *Error {
	return Newf(KindNotFound, "%s not found", entity).
		With("entity", entity).With("id", id)
}

func DuplicateItem(productID, branchID string, batchNumber *string) *Error {
	e := Newf(KindDuplicateItem, "inventory item already exists for product %s at branch %s", productID, branchID).
		With("product_id", productID).With("branch_id", branchID)
	if batchNumber != nil {
		e.With("batch_number", *batchNumber)
	}
	return e
}

func InsufficientStock(itemID string, requested, current float64) *Error {
	return Newf(KindInsufficientStock, "insufficient stock on item %s: requested %.3f, current %.3f", itemID, requested, current).
		With("item_id", itemID).With("requested", requested).With("current", current)
}

func InsufficientAvailable(itemID string, requested, available float64) *Error {
	return Newf(KindInsufficientAvailable, "insufficient available stock on item %s: requested %.3f, available %.3f", itemID, requested, available).
		With("item_id", itemID).With("requested", requested).With("available", available)
}

func OverRelease(itemID string, requested, reserved float64) *Error {
	return Newf(KindOverRelease, "cannot release %.3f from item %s: only %.3f reserved", requested, itemID, reserved).
		With("item_id", itemID).With("requested", requested).With("reserved", reserved)
}

// ShortfallItem describes one under-stocked source line in a feasibility failure.
type ShortfallItem struct {
	ItemID    string  `json:"item_id"`
	ProductID string  `json:"product_id"`
	Required  float64 `json:"required"`
	Available float64 `json:"available"`
}

func Infeasible(orderID string, shortfalls []ShortfallItem) *Error {
	return Newf(KindInfeasible, "repack order %s is not feasible: %d source item(s) under-stocked", orderID, len(shortfalls)).
		With("order_id", orderID).With("shortfalls", shortfalls)
}

func InvalidStatusTransition(entity, id, from, to string) *Error {
	return Newf(KindInvalidStatusTransition, "%s %s cannot transition from %s to %s", entity, id, from, to).
		With("entity", entity).With("id", id).With("from", from).With("to", to)
}

func PolicyNotFound(branchID, productID string) *Error {
	return Newf(KindPolicyNotFound, "no sampling policy configured for branch %s product %s", branchID, productID).
		With("branch_id", branchID).With("product_id", productID)
}

func WeightOutOfBounds(weight float64, reason string) *Error {
	return Newf(KindWeightOutOfBounds, "sample weight %.4f rejected: %s", weight, reason).
		With("weight_gram", weight).With("reason", reason)
}

func SamplingNotAllowed(reason string) *Error {
	return Newf(KindSamplingNotAllowed, "sampling not allowed: %s", reason).
		With("reason", reason)
}

func RequiresApproval(approvalID string, weight float64) *Error {
	return Newf(KindRequiresApproval, "sampling of %.3fg requires approval, request %s created", weight, approvalID).
		With("approval_id", approvalID).With("weight_gram", weight)
}

func AlreadyProcessed(entity, id, status string) *Error {
	return Newf(KindAlreadyProcessed, "%s %s already processed (status %s)", entity, id, status).
		With("entity", entity).With("id", id).With("status", status)
}

func Expired(entity, id string, at time.Time) *Error {
	return Newf(KindExpired, "%s %s expired at %s", entity, id, at.Format(time.RFC3339)).
		With("entity", entity).With("id", id).With("expired_at", at)
}

func Validation(message string) *Error {
	return New(KindValidation, message)
}
