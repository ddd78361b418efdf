package types

import "strings"

// AddressSnapshot is the address copy frozen onto an order at commit time.
// Later edits to the address book never alter historical orders.
type AddressSnapshot struct {
	FullName   string  `json:"full_name"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
}

// Validate reports whether the snapshot carries the minimum deliverable fields.
func (a AddressSnapshot) Validate() bool {
	for _, field := range []string{a.FullName, a.Line1, a.City, a.PostalCode, a.Country} {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return true
}
