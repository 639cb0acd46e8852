package model

import (
	"fmt"
	"slices"
)

// Billing vocabularies mirror the provider's status strings and are persisted
// verbatim.

type StripeInvoiceStatus string

const (
	InvoiceDraft         StripeInvoiceStatus = "draft"
	InvoiceOpen          StripeInvoiceStatus = "open"
	InvoicePaid          StripeInvoiceStatus = "paid"
	InvoiceUncollectible StripeInvoiceStatus = "uncollectible"
	InvoiceVoid          StripeInvoiceStatus = "void"
)

var invoiceStatuses = []StripeInvoiceStatus{
	InvoiceDraft, InvoiceOpen, InvoicePaid, InvoiceUncollectible, InvoiceVoid,
}

func ParseStripeInvoiceStatus(s string) (StripeInvoiceStatus, error) {
	if v := StripeInvoiceStatus(s); slices.Contains(invoiceStatuses, v) {
		return v, nil
	}
	return "", fmt.Errorf("%w: invalid StripeInvoiceStatus %q", ErrInvalidValue, s)
}

type StripeSubscriptionStatus string

const (
	SubscriptionIncomplete        StripeSubscriptionStatus = "incomplete"
	SubscriptionIncompleteExpired StripeSubscriptionStatus = "incomplete_expired"
	SubscriptionTrialing          StripeSubscriptionStatus = "trialing"
	SubscriptionActive            StripeSubscriptionStatus = "active"
	SubscriptionPastDue           StripeSubscriptionStatus = "past_due"
	SubscriptionCanceled          StripeSubscriptionStatus = "canceled"
	SubscriptionUnpaid            StripeSubscriptionStatus = "unpaid"
	SubscriptionPaused            StripeSubscriptionStatus = "paused"
)

var subscriptionStatuses = []StripeSubscriptionStatus{
	SubscriptionIncomplete, SubscriptionIncompleteExpired, SubscriptionTrialing, SubscriptionActive,
	SubscriptionPastDue, SubscriptionCanceled, SubscriptionUnpaid, SubscriptionPaused,
}

func ParseStripeSubscriptionStatus(s string) (StripeSubscriptionStatus, error) {
	if v := StripeSubscriptionStatus(s); slices.Contains(subscriptionStatuses, v) {
		return v, nil
	}
	return "", fmt.Errorf("%w: invalid StripeSubscriptionStatus %q", ErrInvalidValue, s)
}

type StripeEventStatus string

const (
	EventPending    StripeEventStatus = "pending"
	EventInProgress StripeEventStatus = "in_progress"
	EventError      StripeEventStatus = "error"
	EventFinished   StripeEventStatus = "finished"
)

var eventStatuses = []StripeEventStatus{EventPending, EventInProgress, EventError, EventFinished}

func ParseStripeEventStatus(s string) (StripeEventStatus, error) {
	if v := StripeEventStatus(s); slices.Contains(eventStatuses, v) {
		return v, nil
	}
	return "", fmt.Errorf("%w: invalid StripeEventStatus %q", ErrInvalidValue, s)
}
