package enums

import "fmt"

// ReservationStatus tracks a stock reservation through the checkout pipeline.
// held → committed on successful checkout, held → released on failure or sweep.
type ReservationStatus string

const (
	ReservationStatusHeld      ReservationStatus = "held"
	ReservationStatusCommitted ReservationStatus = "committed"
	ReservationStatusReleased  ReservationStatus = "released"
)

var validReservationStatuses = []ReservationStatus{
	ReservationStatusHeld,
	ReservationStatusCommitted,
	ReservationStatusReleased,
}

// IsValid reports whether the value matches the canonical reservation status enum.
func (r ReservationStatus) IsValid() bool {
	for _, candidate := range validReservationStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReservationStatus converts the raw string to ReservationStatus.
func ParseReservationStatus(value string) (ReservationStatus, error) {
	for _, candidate := range validReservationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reservation status %q", value)
}
