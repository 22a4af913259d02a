// Package status keeps the append-only order status ledger: one record per
// lifecycle transition, with synthetic negative order ids for failures that
// happened before a real order id existed.
package status

// Status is a lifecycle state name. The wire format and the REST surface
// carry the name; storage carries the integer code.
type Status string

const (
	Received           Status = "RECEIVED"
	Processing         Status = "PROCESSING"
	Shipped            Status = "SHIPPED"
	NoShipAvailable    Status = "NO_SHIP_AVAILABLE"
	Failed             Status = "FAILED"
	NoShipAvailableDLT Status = "NO_SHIP_AVAILABLE_DLT"
)

// Code returns the stored integer for the status. Unknown statuses map to 0,
// which FromCode then resolves to Received.
func (s Status) Code() int {
	switch s {
	case Received:
		return 1
	case Processing:
		return 2
	case Shipped:
		return 3
	case NoShipAvailable:
		return 4
	case Failed:
		return 5
	case NoShipAvailableDLT:
		return 6
	}
	return 0
}

// FromCode resolves a stored code back to its name. Unknown codes fail
// closed to Received rather than erroring, so a ledger row written by a
// newer version still renders.
func FromCode(code int) Status {
	switch code {
	case 1:
		return Received
	case 2:
		return Processing
	case 3:
		return Shipped
	case 4:
		return NoShipAvailable
	case 5:
		return Failed
	case 6:
		return NoShipAvailableDLT
	}
	return Received
}

// Terminal reports whether the status ends the order's lifecycle.
func (s Status) Terminal() bool {
	return s == Shipped || s == Failed || s == NoShipAvailableDLT
}
