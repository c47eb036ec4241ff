package models

// OrderStatus is one of the fixed fulfillment stages.
type OrderStatus string

const (
	StatusPlaced         OrderStatus = "Order placed"
	StatusPrinting       OrderStatus = "Printing"
	StatusPostProcessing OrderStatus = "Post-processing"
	StatusShipped        OrderStatus = "Shipped"
	StatusDelivered      OrderStatus = "Delivered"
)

// OrderStatuses lists the fulfillment stages in forward order.
var OrderStatuses = []OrderStatus{
	StatusPlaced,
	StatusPrinting,
	StatusPostProcessing,
	StatusShipped,
	StatusDelivered,
}

func ParseOrderStatus(raw string) (OrderStatus, bool) {
	for _, s := range OrderStatuses {
		if OrderStatus(raw) == s {
			return s, true
		}
	}
	return "", false
}

func statusIndex(s OrderStatus) int {
	for i, known := range OrderStatuses {
		if s == known {
			return i
		}
	}
	return -1
}

// CanTransition reports whether an order may move from one status to
// another. Under the forward-only policy a status may only advance (skipping
// stages is allowed, e.g. straight to Shipped); otherwise any known status
// may be set directly.
func CanTransition(from, to OrderStatus, forwardOnly bool) bool {
	fi, ti := statusIndex(from), statusIndex(to)
	if fi < 0 || ti < 0 {
		return false
	}
	if !forwardOnly {
		return true
	}
	return ti > fi
}
