package statuscache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/seruni-shop/internal/checkout"
	kafkax "github.com/ariefcatur/seruni-shop/internal/kafka"
	"github.com/ariefcatur/seruni-shop/internal/redisx"
)

// Service keeps the redis order-status cache in sync by consuming order
// lifecycle events. Dedup by event id makes replays harmless.
type Service struct {
	Redis       *redis.Client
	ServiceName string
}

type cachedStatus struct {
	PaymentStatus checkout.PaymentStatus `json:"payment_status"`
	OrderStatus   checkout.OrderStatus   `json:"order_status"`
}

// HandleEvent dipasang sebagai handler consumer.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env checkout.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	exists, _ := redisx.Exists(ctx, s.Redis, dkey)
	if exists {
		return nil
	}

	st, seed, ok, err := decideCache(env)
	if err != nil {
		return err
	}
	if !ok {
		return nil // ignore
	}

	key := fmt.Sprintf(redisx.KeyOrderStatus, env.CorrelationID)
	if seed {
		// order.created can arrive after a status change; never clobber a
		// newer cached pair with the initial one
		if err := s.Redis.SetNX(ctx, key, kafkax.MustMarshal(st), redisx.TTLStatusCache).Err(); err != nil {
			return err
		}
	} else if err := s.Redis.Set(ctx, key, kafkax.MustMarshal(st), redisx.TTLStatusCache).Err(); err != nil {
		return err
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	slog.Info("status cache updated",
		"order_id", env.CorrelationID,
		"payment_status", st.PaymentStatus,
		"order_status", st.OrderStatus,
	)
	return nil
}

// decideCache maps an event to the pair to cache. seed marks the initial
// pending/pending value, written only when no pair is cached yet.
func decideCache(env checkout.Envelope) (st cachedStatus, seed, ok bool, err error) {
	switch env.EventType {
	case checkout.EventOrderCreated:
		return cachedStatus{PaymentStatus: checkout.PaymentPending, OrderStatus: checkout.StatusPending}, true, true, nil
	case checkout.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[checkout.StatusChangedPayload](env.Payload)
		if err != nil {
			return cachedStatus{}, false, false, err
		}
		return cachedStatus{PaymentStatus: p.PaymentStatus, OrderStatus: p.OrderStatus}, false, true, nil
	}
	return cachedStatus{}, false, false, nil
}
