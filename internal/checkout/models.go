package checkout

import "time"

type Checkout struct {
	ID              int64
	OrderID         string
	UserID          int64
	Description     string
	GiftCard        bool
	GiftDescription string
	Estimation      time.Time
	TotalPrice      int
	SnapToken       string
	Delivery        Delivery
	Lines           []OrderLine
	Status          []StatusEvent
	CreatedAt       time.Time
}

type Delivery struct {
	Type          string // delivery | pickup
	PickupDate    string
	PickupHour    string
	DeliveryPrice int
	AddressID     int64
}

// OrderLine snapshots a reserved cart entry. Price is the line subtotal
// (unit price x quantity) at reservation time.
type OrderLine struct {
	ProductID int64
	VariantID int64
	Quantity  int
	Price     int
}

// StatusEvent is one immutable entry of the order's append-only status log.
// The current status of an order is its latest event.
type StatusEvent struct {
	PaymentStatus PaymentStatus
	OrderStatus   OrderStatus
	Description   string
	CreatedAt     time.Time
}

// Summary is the admin list row.
type Summary struct {
	OrderID       string
	UserName      string
	PaymentStatus PaymentStatus
	OrderStatus   OrderStatus
	DeliveryType  string
	Amount        int
}

// HistoryEntry is one row of a user's own checkout history.
type HistoryEntry struct {
	OrderID     string
	OrderStatus OrderStatus
	TotalPrice  int
	CreatedAt   time.Time
}

type ItemInput struct {
	ProductID int64 `json:"product_id"`
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
}

type DeliveryInput struct {
	Type       string `json:"type"`
	PickupDate string `json:"pickup_date,omitempty"`
	PickupHour string `json:"pickup_hour,omitempty"`
	AddressID  int64  `json:"address_id"`
}

type CheckoutInput struct {
	UserID          int64
	Description     string
	GiftCard        bool
	GiftDescription string
	Delivery        DeliveryInput
	Items           []ItemInput
}

type CheckoutResult struct {
	OrderID    string
	SnapToken  string
	TotalPrice int
}

type WebhookInput struct {
	OrderID           string
	TransactionStatus string
	StatusCode        string
	GrossAmount       string
}
