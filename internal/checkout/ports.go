package checkout

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
)

// CreateOrderInput is the persistence-level request: validated items plus the
// delivery fee the service already computed.
type CreateOrderInput struct {
	UserID          int64
	Description     string
	GiftCard        bool
	GiftDescription string
	Delivery        DeliveryInput
	Items           []ItemInput
	DeliveryFee     int
}

// StatusDecision inspects the latest status event and returns the event to
// append plus whether the order lines must be restocked. ApplyStatus calls it
// with the checkout row locked, so the decision and its side effects are
// serialized against concurrent webhook deliveries and admin updates.
type StatusDecision func(latest StatusEvent) (ev StatusEvent, restock bool, err error)

// Store is the persistence port. CreateOrder and ApplyStatus are all-or-nothing:
// either every stock/sold/cart mutation applies together with the written rows,
// or none of it does.
type Store interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*Checkout, error)
	SetSnapToken(ctx context.Context, orderID, token string) error
	ByOrderID(ctx context.Context, orderID string) (*Checkout, error)
	LatestStatus(ctx context.Context, orderID string) (*StatusEvent, error)
	ApplyStatus(ctx context.Context, orderID string, decide StatusDecision) (*StatusEvent, bool, error)
	ListSummaries(ctx context.Context) ([]Summary, error)
	HistoryByUser(ctx context.Context, userID int64) ([]HistoryEntry, error)
	AddressCoords(ctx context.Context, addressID int64) (lon, lat string, err error)
}

// SnapGateway creates payment-gateway transactions. Called only after the local
// reservation transaction has committed.
type SnapGateway interface {
	CreateTransaction(ctx context.Context, orderID string, grossAmount int) (token string, err error)
}

// DistanceClient resolves driving distance in meters between two coordinates.
type DistanceClient interface {
	Distance(ctx context.Context, fromLon, fromLat, toLon, toLat string) (float64, error)
}

// Publisher is satisfied by kafka.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}
