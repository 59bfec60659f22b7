package entity

import "time"

type DeliveryStatus int16

const (
	// DeliveryStatusQueued mean the code was accepted for delivery.
	DeliveryStatusQueued DeliveryStatus = 1

	// DeliveryStatusSent mean the provider accepted the message.
	DeliveryStatusSent DeliveryStatus = 2

	// DeliveryStatusFailed mean every send attempt was exhausted.
	DeliveryStatusFailed DeliveryStatus = 3
)

func (ds DeliveryStatus) String() string {
	switch ds {
	case DeliveryStatusQueued:
		return "Queued"
	case DeliveryStatusSent:
		return "Sent"
	case DeliveryStatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// DeliveryLog records one attempt to push a verification code to an
// account's out-of-band channel. The code itself is never stored here.
type DeliveryLog struct {
	ID        int64
	SessionID int64
	AccountID string
	Channel   string
	Target    string
	Status    DeliveryStatus
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
