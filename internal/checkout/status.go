package checkout

import "fmt"

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusDelivery   OrderStatus = "delivery"
	StatusSuccess    OrderStatus = "success"
	StatusCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentExpired  PaymentStatus = "expired"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// happyPath is the linear fulfilment sequence. cancelled sits outside it and is
// reachable from any non-terminal state.
var happyPath = []OrderStatus{StatusPending, StatusProcessing, StatusDelivery, StatusSuccess}

func statusIndex(s OrderStatus) int {
	for i, v := range happyPath {
		if v == s {
			return i
		}
	}
	return -1
}

func IsTerminal(s OrderStatus) bool {
	return s == StatusSuccess || s == StatusCancelled
}

// CanTransition reports whether an order may move from one status to the next.
// Only single forward steps along the happy path are allowed, plus a jump to
// cancelled from any non-terminal state.
func CanTransition(from, to OrderStatus) bool {
	if to == StatusCancelled {
		return !IsTerminal(from)
	}
	fi, ti := statusIndex(from), statusIndex(to)
	if fi < 0 || ti < 0 {
		return false
	}
	return ti == fi+1
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case StatusPending, StatusProcessing, StatusDelivery, StatusSuccess, StatusCancelled:
		return OrderStatus(s), nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// MapTransactionStatus translates a Midtrans transaction_status into the
// payment/order status pair that gets appended to the order's status log.
func MapTransactionStatus(transactionStatus string) (PaymentStatus, OrderStatus, error) {
	switch transactionStatus {
	case "capture", "settlement":
		return PaymentPaid, StatusPending, nil
	case "pending":
		return PaymentPending, StatusPending, nil
	case "expire":
		return PaymentExpired, StatusCancelled, nil
	case "deny", "cancel":
		return PaymentFailed, StatusCancelled, nil
	case "refund":
		return PaymentRefunded, StatusCancelled, nil
	}
	return "", "", fmt.Errorf("unknown transaction status %q", transactionStatus)
}
