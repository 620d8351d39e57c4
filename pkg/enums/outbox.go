package enums

import "fmt"

// OutboxStatus is the delivery state of an outbox row.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

var validOutboxStatuses = []OutboxStatus{
	OutboxStatusPending,
	OutboxStatusPublished,
	OutboxStatusFailed,
}

// String implements fmt.Stringer.
func (o OutboxStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OutboxStatus.
func (o OutboxStatus) IsValid() bool {
	for _, candidate := range validOutboxStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOutboxStatus converts raw input into an OutboxStatus.
func ParseOutboxStatus(value string) (OutboxStatus, error) {
	for _, candidate := range validOutboxStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox status %q", value)
}

// OutboxEventType identifies what happened to an aggregate.
type OutboxEventType string

const (
	OutboxEventOrderCheckedOut    OutboxEventType = "order.checked_out"
	OutboxEventOrderPaid          OutboxEventType = "order.paid"
	OutboxEventOrderPaymentFailed OutboxEventType = "order.payment_failed"
	OutboxEventOrderCanceled      OutboxEventType = "order.canceled"
	OutboxEventOrderFrozen        OutboxEventType = "order.frozen"
	OutboxEventUserRegistered     OutboxEventType = "user.registered"
	OutboxEventUserActivated      OutboxEventType = "user.activated"
)

var validOutboxEventTypes = []OutboxEventType{
	OutboxEventOrderCheckedOut,
	OutboxEventOrderPaid,
	OutboxEventOrderPaymentFailed,
	OutboxEventOrderCanceled,
	OutboxEventOrderFrozen,
	OutboxEventUserRegistered,
	OutboxEventUserActivated,
}

// String implements fmt.Stringer.
func (o OutboxEventType) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OutboxEventType.
func (o OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// AggregateType names the entity an outbox event belongs to.
type AggregateType string

const (
	AggregateTypeOrder AggregateType = "order"
	AggregateTypeUser  AggregateType = "user"
)

var validAggregateTypes = []AggregateType{
	AggregateTypeOrder,
	AggregateTypeUser,
}

// String implements fmt.Stringer.
func (a AggregateType) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AggregateType.
func (a AggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}
