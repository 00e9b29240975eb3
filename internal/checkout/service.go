package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/seruni-shop/internal/kafka"
	"github.com/ariefcatur/seruni-shop/internal/shipping"
)

// Service orchestrates the reservation transaction, the payment gateway
// follow-up, the status state machine and lifecycle event publishing.
type Service struct {
	Store    Store
	Snap     SnapGateway
	Distance DistanceClient

	ProducerCreated Publisher // order.created
	ProducerStatus  Publisher // order.status.changed

	ServiceName string

	// Koordinat toko, origin ongkir.
	StoreLon string
	StoreLat string
}

// Create runs a checkout: compute the delivery fee, reserve stock and persist
// the order in one transaction, then create the Snap transaction. The gateway
// call happens strictly after commit; if it fails the order stays payable and
// the token can be fetched again later.
func (s *Service) Create(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	fee := 0
	if in.Delivery.Type == "delivery" {
		lon, lat, err := s.Store.AddressCoords(ctx, in.Delivery.AddressID)
		if err != nil {
			return nil, err
		}
		meters, err := s.Distance.Distance(ctx, s.StoreLon, s.StoreLat, lon, lat)
		if err != nil {
			return nil, fmt.Errorf("distance lookup: %w", err)
		}
		fee = shipping.DeliveryFee(meters)
	}

	ord, err := s.Store.CreateOrder(ctx, CreateOrderInput{
		UserID:          in.UserID,
		Description:     in.Description,
		GiftCard:        in.GiftCard,
		GiftDescription: in.GiftDescription,
		Delivery:        in.Delivery,
		Items:           in.Items,
		DeliveryFee:     fee,
	})
	if err != nil {
		return nil, err
	}

	token, err := s.Snap.CreateTransaction(ctx, ord.OrderID, ord.TotalPrice)
	if err != nil {
		// Order sudah commit; token bisa diminta ulang.
		slog.Warn("snap transaction failed", "order_id", ord.OrderID, "err", err)
	} else if err := s.Store.SetSnapToken(ctx, ord.OrderID, token); err != nil {
		slog.Warn("persist snap token failed", "order_id", ord.OrderID, "err", err)
	}

	lines := make([]LinePayload, 0, len(ord.Lines))
	for _, ln := range ord.Lines {
		lines = append(lines, LinePayload{
			ProductID: ln.ProductID, VariantID: ln.VariantID,
			Quantity: ln.Quantity, Price: ln.Price,
		})
	}
	s.publish(s.ProducerCreated, EventOrderCreated, ord.OrderID, OrderCreatedPayload{
		OrderID:    ord.OrderID,
		UserID:     ord.UserID,
		TotalPrice: ord.TotalPrice,
		Lines:      lines,
	})

	return &CheckoutResult{OrderID: ord.OrderID, SnapToken: token, TotalPrice: ord.TotalPrice}, nil
}

// UpdateStatus advances the order along pending -> processing -> delivery ->
// success, or cancels it from any non-terminal state. Cancellation restores
// variant stock and product sold counters together with the new status event.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, next OrderStatus, description string) error {
	if description == "" {
		description = statusDescription(next)
	}
	ev, restock, err := s.Store.ApplyStatus(ctx, orderID, func(latest StatusEvent) (StatusEvent, bool, error) {
		if !CanTransition(latest.OrderStatus, next) {
			return StatusEvent{}, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, latest.OrderStatus, next)
		}
		return StatusEvent{
			PaymentStatus: latest.PaymentStatus,
			OrderStatus:   next,
			Description:   description,
		}, next == StatusCancelled, nil
	})
	if err != nil {
		return err
	}

	s.publish(s.ProducerStatus, EventOrderStatusChanged, orderID, StatusChangedPayload{
		OrderID:       orderID,
		PaymentStatus: ev.PaymentStatus,
		OrderStatus:   ev.OrderStatus,
		Restocked:     restock,
	})
	return nil
}

// HandleWebhook applies a payment-gateway notification. Safe under
// at-least-once delivery: the decision runs inside ApplyStatus with the
// checkout row locked, so of two duplicate cancelling notifications only the
// first restocks and the second gets ErrAlreadyProcessed.
func (s *Service) HandleWebhook(ctx context.Context, in WebhookInput) error {
	pay, ord, err := MapTransactionStatus(in.TransactionStatus)
	if err != nil {
		return err
	}

	ev, restock, err := s.Store.ApplyStatus(ctx, in.OrderID, webhookDecision(pay, ord))
	if err != nil {
		return err
	}

	s.publish(s.ProducerStatus, EventOrderStatusChanged, in.OrderID, StatusChangedPayload{
		OrderID:       in.OrderID,
		PaymentStatus: ev.PaymentStatus,
		OrderStatus:   ev.OrderStatus,
		Restocked:     restock,
	})
	return nil
}

// webhookDecision folds a mapped notification into the recorded state.
func webhookDecision(pay PaymentStatus, ord OrderStatus) StatusDecision {
	return func(latest StatusEvent) (StatusEvent, bool, error) {
		next := ord
		if next != StatusCancelled {
			if latest.OrderStatus == StatusCancelled {
				// stale notification on a cancelled order
				return StatusEvent{}, false, ErrAlreadyProcessed
			}
			// out-of-order pending after the payment already settled
			if latest.PaymentStatus == PaymentPaid && pay == PaymentPending {
				return StatusEvent{}, false, ErrAlreadyProcessed
			}
			// a settlement must not pull fulfilment back to pending
			if statusIndex(latest.OrderStatus) > statusIndex(next) {
				next = latest.OrderStatus
			}
		}
		if latest.PaymentStatus == pay && latest.OrderStatus == next {
			return StatusEvent{}, false, ErrAlreadyProcessed
		}

		restock := next == StatusCancelled && latest.OrderStatus != StatusCancelled
		return StatusEvent{
			PaymentStatus: pay,
			OrderStatus:   next,
			Description:   paymentDescription(pay),
		}, restock, nil
	}
}

func (s *Service) Detail(ctx context.Context, orderID string) (*Checkout, error) {
	return s.Store.ByOrderID(ctx, orderID)
}

func (s *Service) Summaries(ctx context.Context) ([]Summary, error) {
	return s.Store.ListSummaries(ctx)
}

func (s *Service) HistoryFor(ctx context.Context, userID int64) ([]HistoryEntry, error) {
	return s.Store.HistoryByUser(ctx, userID)
}

func statusDescription(st OrderStatus) string {
	switch st {
	case StatusProcessing:
		return "Being processed"
	case StatusDelivery:
		return "On delivery"
	case StatusSuccess:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	}
	return "Waiting for payment"
}

func paymentDescription(ps PaymentStatus) string {
	switch ps {
	case PaymentPaid:
		return "Payment received"
	case PaymentExpired:
		return "Payment expired"
	case PaymentFailed:
		return "Payment failed"
	case PaymentRefunded:
		return "Payment refunded"
	}
	return "Waiting for payment"
}

func (s *Service) publish(p Publisher, eventType, orderID string, payload any) {
	if p == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
