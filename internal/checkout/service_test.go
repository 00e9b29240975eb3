package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore mirrors the Store contract in memory, staging every mutation of a
// CreateOrder so failures leave nothing applied, like the SQL transaction does.
// The mutex plays the role of the row lock: ApplyStatus runs decide and its
// side effects as one critical section.
type memStore struct {
	mu       sync.Mutex
	variants map[int64]*fakeVariant
	sold     map[int64]int
	carts    map[[3]int64]bool // user, product, variant
	orders   map[string]*Checkout
	coords   map[int64][2]string
	tokens   map[string]string
}

type fakeVariant struct {
	productID int64
	stock     int
	price     int
}

func newMemStore() *memStore {
	return &memStore{
		variants: map[int64]*fakeVariant{},
		sold:     map[int64]int{},
		carts:    map[[3]int64]bool{},
		orders:   map[string]*Checkout{},
		coords:   map[int64][2]string{},
		tokens:   map[string]string{},
	}
}

func (m *memStore) CreateOrder(_ context.Context, in CreateOrderInput) (*Checkout, error) {
	type staged struct {
		v   *fakeVariant
		key [3]int64
		it  ItemInput
	}
	var st []staged
	var lines []OrderLine
	subtotal := 0
	for _, it := range in.Items {
		v, ok := m.variants[it.VariantID]
		if !ok {
			return nil, ErrVariantNotFound
		}
		if err := validateLine(v.productID, v.stock, it); err != nil {
			return nil, err
		}
		key := [3]int64{in.UserID, it.ProductID, it.VariantID}
		if !m.carts[key] {
			return nil, ErrNotInCart
		}
		lineTotal := v.price * it.Quantity
		subtotal += lineTotal
		lines = append(lines, OrderLine{
			ProductID: it.ProductID, VariantID: it.VariantID,
			Quantity: it.Quantity, Price: lineTotal,
		})
		st = append(st, staged{v: v, key: key, it: it})
	}

	for _, s := range st {
		delete(m.carts, s.key)
		s.v.stock -= s.it.Quantity
		m.sold[s.it.ProductID] += s.it.Quantity
	}

	ord := &Checkout{
		OrderID:    NewOrderID(),
		UserID:     in.UserID,
		TotalPrice: subtotal + in.DeliveryFee,
		Lines:      lines,
		Delivery: Delivery{
			Type: in.Delivery.Type, AddressID: in.Delivery.AddressID,
			DeliveryPrice: in.DeliveryFee,
		},
		Status: []StatusEvent{{
			PaymentStatus: PaymentPending,
			OrderStatus:   StatusPending,
			Description:   "Waiting for payment",
			CreatedAt:     time.Now(),
		}},
		CreatedAt: time.Now(),
	}
	m.orders[ord.OrderID] = ord
	return ord, nil
}

func (m *memStore) SetSnapToken(_ context.Context, orderID, token string) error {
	if _, ok := m.orders[orderID]; !ok {
		return ErrOrderNotFound
	}
	m.tokens[orderID] = token
	return nil
}

func (m *memStore) ByOrderID(_ context.Context, orderID string) (*Checkout, error) {
	ord, ok := m.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return ord, nil
}

func (m *memStore) LatestStatus(_ context.Context, orderID string) (*StatusEvent, error) {
	ord, ok := m.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	ev := ord.Status[len(ord.Status)-1]
	return &ev, nil
}

func (m *memStore) ApplyStatus(_ context.Context, orderID string, decide StatusDecision) (*StatusEvent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ord, ok := m.orders[orderID]
	if !ok {
		return nil, false, ErrOrderNotFound
	}
	ev, restock, err := decide(ord.Status[len(ord.Status)-1])
	if err != nil {
		return nil, false, err
	}
	if restock {
		for _, ln := range ord.Lines {
			m.variants[ln.VariantID].stock += ln.Quantity
			m.sold[ln.ProductID] -= ln.Quantity
		}
	}
	ev.CreatedAt = time.Now()
	ord.Status = append(ord.Status, ev)
	return &ev, restock, nil
}

func (m *memStore) ListSummaries(_ context.Context) ([]Summary, error) { return nil, nil }

func (m *memStore) HistoryByUser(_ context.Context, _ int64) ([]HistoryEntry, error) {
	return nil, nil
}

func (m *memStore) AddressCoords(_ context.Context, addressID int64) (string, string, error) {
	c, ok := m.coords[addressID]
	if !ok {
		return "", "", ErrAddressNotFound
	}
	return c[0], c[1], nil
}

type fakeSnap struct {
	token string
	err   error
	calls int
}

func (f *fakeSnap) CreateTransaction(_ context.Context, _ string, _ int) (string, error) {
	f.calls++
	return f.token, f.err
}

type fakeDistance struct{ meters float64 }

func (f *fakeDistance) Distance(_ context.Context, _, _, _, _ string) (float64, error) {
	return f.meters, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) Publish(_, value []byte, _ ...kafkago.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, string(value))
}

const (
	testUser    = int64(7)
	testProduct = int64(1)
	testVariant = int64(11)
)

func newTestService(store *memStore) (*Service, *fakeSnap, *fakePublisher) {
	snap := &fakeSnap{token: "snap-token-1"}
	pub := &fakePublisher{}
	svc := &Service{
		Store:           store,
		Snap:            snap,
		Distance:        &fakeDistance{meters: 20000},
		ProducerCreated: pub,
		ProducerStatus:  pub,
		ServiceName:     "shop-api-test",
		StoreLon:        "106.8166",
		StoreLat:        "-6.2088",
	}
	return svc, snap, pub
}

func seedStore(stock, price int) *memStore {
	st := newMemStore()
	st.variants[testVariant] = &fakeVariant{productID: testProduct, stock: stock, price: price}
	st.carts[[3]int64{testUser, testProduct, testVariant}] = true
	st.coords[1] = [2]string{"106.82", "-6.21"}
	return st
}

func pickupInput(qty int) CheckoutInput {
	return CheckoutInput{
		UserID:   testUser,
		Delivery: DeliveryInput{Type: "pickup"},
		Items:    []ItemInput{{ProductID: testProduct, VariantID: testVariant, Quantity: qty}},
	}
}

func TestCreate_ReservesStockAndComputesTotal(t *testing.T) {
	st := seedStore(5, 20000)
	svc, snap, pub := newTestService(st)

	res, err := svc.Create(context.Background(), pickupInput(3))
	require.NoError(t, err)

	assert.Equal(t, 2, st.variants[testVariant].stock)
	assert.Equal(t, 3, st.sold[testProduct])
	assert.Equal(t, 60000, res.TotalPrice)
	assert.Equal(t, "snap-token-1", res.SnapToken)
	assert.Equal(t, "snap-token-1", st.tokens[res.OrderID])
	assert.Equal(t, 1, snap.calls)

	// cart entry consumed
	assert.False(t, st.carts[[3]int64{testUser, testProduct, testVariant}])

	latest, err := st.LatestStatus(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, PaymentPending, latest.PaymentStatus)
	assert.Equal(t, StatusPending, latest.OrderStatus)

	require.Len(t, pub.events, 1)
	assert.Contains(t, pub.events[0], EventOrderCreated)
}

func TestCreate_DeliveryFeeAddedToTotal(t *testing.T) {
	st := seedStore(5, 20000)
	svc, _, _ := newTestService(st)

	in := pickupInput(3)
	in.Delivery = DeliveryInput{Type: "delivery", AddressID: 1}

	res, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	// 20km -> fee 20000 * 2, on top of 3 x 20000
	assert.Equal(t, 60000+40000, res.TotalPrice)

	ord, err := st.ByOrderID(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, 40000, ord.Delivery.DeliveryPrice)
}

func TestCreate_InsufficientStock_NothingApplied(t *testing.T) {
	st := seedStore(5, 20000)
	svc, snap, _ := newTestService(st)

	_, err := svc.Create(context.Background(), pickupInput(6))
	assert.ErrorIs(t, err, ErrInsufficientStock)

	assert.Equal(t, 5, st.variants[testVariant].stock)
	assert.Equal(t, 0, st.sold[testProduct])
	assert.True(t, st.carts[[3]int64{testUser, testProduct, testVariant}])
	assert.Empty(t, st.orders)
	assert.Equal(t, 0, snap.calls, "gateway must not be called when the transaction fails")
}

func TestCreate_MultiLine_AllOrNothing(t *testing.T) {
	st := seedStore(5, 20000)
	st.variants[12] = &fakeVariant{productID: 2, stock: 4, price: 10000}
	// second variant not in the cart
	svc, _, _ := newTestService(st)

	in := pickupInput(2)
	in.Items = append(in.Items, ItemInput{ProductID: 2, VariantID: 12, Quantity: 1})

	_, err := svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, ErrNotInCart)

	assert.Equal(t, 5, st.variants[testVariant].stock, "first line must not be applied")
	assert.Equal(t, 4, st.variants[12].stock)
	assert.Empty(t, st.orders)
}

func TestCreate_VariantMismatch(t *testing.T) {
	st := seedStore(5, 20000)
	svc, _, _ := newTestService(st)

	in := pickupInput(1)
	in.Items[0].ProductID = 99
	_, err := svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, ErrVariantMismatch)
}

func TestCreate_VariantNotFound(t *testing.T) {
	st := seedStore(5, 20000)
	svc, _, _ := newTestService(st)

	in := pickupInput(1)
	in.Items[0].VariantID = 404
	_, err := svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, ErrVariantNotFound)
}

func TestCreate_SnapFailure_OrderStillCreated(t *testing.T) {
	st := seedStore(5, 20000)
	svc, snap, _ := newTestService(st)
	snap.err = errors.New("gateway down")
	snap.token = ""

	res, err := svc.Create(context.Background(), pickupInput(2))
	require.NoError(t, err, "a failed gateway call must not undo the committed order")

	assert.Empty(t, res.SnapToken)
	assert.Equal(t, 3, st.variants[testVariant].stock)
	assert.Contains(t, st.orders, res.OrderID)
}

func TestUpdateStatus_HappyPath(t *testing.T) {
	st := seedStore(5, 20000)
	svc, _, _ := newTestService(st)

	res, err := svc.Create(context.Background(), pickupInput(1))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, svc.UpdateStatus(ctx, res.OrderID, StatusProcessing, ""))
	require.NoError(t, svc.UpdateStatus(ctx, res.OrderID, StatusDelivery, ""))
	require.NoError(t, svc.UpdateStatus(ctx, res.OrderID, StatusSuccess, ""))

	latest, _ := st.LatestStatus(ctx, res.OrderID)
	assert.Equal(t, StatusSuccess, latest.OrderStatus)

	// terminal: no cancel afterwards
	err = svc.UpdateStatus(ctx, res.OrderID, StatusCancelled, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatus_SkippingStepFails(t *testing.T) {
	st := seedStore(5, 20000)
	svc, _, _ := newTestService(st)

	res, err := svc.Create(context.Background(), pickupInput(1))
	require.NoError(t, err)

	err = svc.UpdateStatus(context.Background(), res.OrderID, StatusDelivery, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	latest, _ := st.LatestStatus(context.Background(), res.OrderID)
	assert.Equal(t, StatusPending, latest.OrderStatus, "failed transition must not append an event")
}

func TestUpdateStatus_CancelRestoresInventory(t *testing.T) {
	st := seedStore(5, 20000)
	svc, _, _ := newTestService(st)

	ctx := context.Background()
	res, err := svc.Create(ctx, pickupInput(3))
	require.NoError(t, err)
	require.Equal(t, 2, st.variants[testVariant].stock)
	require.Equal(t, 3, st.sold[testProduct])

	require.NoError(t, svc.UpdateStatus(ctx, res.OrderID, StatusCancelled, "customer asked"))

	assert.Equal(t, 5, st.variants[testVariant].stock)
	assert.Equal(t, 0, st.sold[testProduct])

	latest, _ := st.LatestStatus(ctx, res.OrderID)
	assert.Equal(t, StatusCancelled, latest.OrderStatus)
	assert.Equal(t, "customer asked", latest.Description)
}

func TestUpdateStatus_UnknownOrder(t *testing.T) {
	st := seedStore(5, 20000)
	svc, _, _ := newTestService(st)

	err := svc.UpdateStatus(context.Background(), "ORD-0000", StatusProcessing, "")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func webhook(orderID, tx string) WebhookInput {
	return WebhookInput{
		OrderID:           orderID,
		TransactionStatus: tx,
		StatusCode:        "200",
		GrossAmount:       "60000.00",
	}
}

func TestWebhook_SettlementThenReplayIsNoOp(t *testing.T) {
	st := seedStore(5, 20000)
	svc, _, _ := newTestService(st)

	ctx := context.Background()
	res, err := svc.Create(ctx, pickupInput(3))
	require.NoError(t, err)

	require.NoError(t, svc.HandleWebhook(ctx, webhook(res.OrderID, "settlement")))
	latest, _ := st.LatestStatus(ctx, res.OrderID)
	assert.Equal(t, PaymentPaid, latest.PaymentStatus)
	assert.Equal(t, StatusPending, latest.OrderStatus)

	events := len(st.orders[res.OrderID].Status)
	err = svc.HandleWebhook(ctx, webhook(res.OrderID, "settlement"))
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Len(t, st.orders[res.OrderID].Status, events, "replay must not append")
}

func TestWebhook_SettlementKeepsFulfilmentProgress(t *testing.T) {
	st := seedStore(5, 20000)
	svc, _, _ := newTestService(st)

	ctx := context.Background()
	res, err := svc.Create(ctx, pickupInput(1))
	require.NoError(t, err)

	require.NoError(t, svc.HandleWebhook(ctx, webhook(res.OrderID, "settlement")))
	require.NoError(t, svc.UpdateStatus(ctx, res.OrderID, StatusProcessing, ""))

	// late duplicate settlement must not pull the order back to pending
	err = svc.HandleWebhook(ctx, webhook(res.OrderID, "settlement"))
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	latest, _ := st.LatestStatus(ctx, res.OrderID)
	assert.Equal(t, StatusProcessing, latest.OrderStatus)
}

func TestWebhook_ExpireCancelsAndRestocks(t *testing.T) {
	st := seedStore(5, 20000)
	svc, _, pub := newTestService(st)

	ctx := context.Background()
	res, err := svc.Create(ctx, pickupInput(3))
	require.NoError(t, err)
	require.Equal(t, 2, st.variants[testVariant].stock)

	require.NoError(t, svc.HandleWebhook(ctx, webhook(res.OrderID, "expire")))

	assert.Equal(t, 5, st.variants[testVariant].stock)
	assert.Equal(t, 0, st.sold[testProduct])
	latest, _ := st.LatestStatus(ctx, res.OrderID)
	assert.Equal(t, PaymentExpired, latest.PaymentStatus)
	assert.Equal(t, StatusCancelled, latest.OrderStatus)

	// at-least-once redelivery: no second restock
	err = svc.HandleWebhook(ctx, webhook(res.OrderID, "expire"))
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Equal(t, 5, st.variants[testVariant].stock)

	assert.Contains(t, pub.events[len(pub.events)-1], EventOrderStatusChanged)
}

func TestWebhook_ConcurrentExpireRestocksOnce(t *testing.T) {
	st := seedStore(5, 20000)
	svc, _, _ := newTestService(st)

	ctx := context.Background()
	res, err := svc.Create(ctx, pickupInput(3))
	require.NoError(t, err)
	require.Equal(t, 2, st.variants[testVariant].stock)

	// two deliveries of the same expire notification land at the same time
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.HandleWebhook(ctx, webhook(res.OrderID, "expire"))
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, err := range errs {
		if err == nil {
			applied++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyProcessed)
		}
	}
	assert.Equal(t, 1, applied, "exactly one delivery may cancel the order")
	assert.Equal(t, 5, st.variants[testVariant].stock, "inventory restored exactly once")
	assert.Equal(t, 0, st.sold[testProduct])
}

func TestCancelRacingExpireRestocksOnce(t *testing.T) {
	st := seedStore(5, 20000)
	svc, _, _ := newTestService(st)

	ctx := context.Background()
	res, err := svc.Create(ctx, pickupInput(3))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var adminErr, hookErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		adminErr = svc.UpdateStatus(ctx, res.OrderID, StatusCancelled, "customer asked")
	}()
	go func() {
		defer wg.Done()
		hookErr = svc.HandleWebhook(ctx, webhook(res.OrderID, "expire"))
	}()
	wg.Wait()

	// whichever lands second sees the cancelled order: the webhook may still
	// record the expired payment, but neither path restocks twice
	if adminErr != nil {
		assert.ErrorIs(t, adminErr, ErrInvalidTransition)
		assert.NoError(t, hookErr)
	}
	assert.Equal(t, 5, st.variants[testVariant].stock, "inventory restored exactly once")
	assert.Equal(t, 0, st.sold[testProduct])

	latest, _ := st.LatestStatus(ctx, res.OrderID)
	assert.Equal(t, StatusCancelled, latest.OrderStatus)
}

func TestWebhook_DenyAfterCancelledIsNoOp(t *testing.T) {
	st := seedStore(5, 20000)
	svc, _, _ := newTestService(st)

	ctx := context.Background()
	res, err := svc.Create(ctx, pickupInput(2))
	require.NoError(t, err)

	require.NoError(t, svc.HandleWebhook(ctx, webhook(res.OrderID, "expire")))
	require.Equal(t, 5, st.variants[testVariant].stock)

	// a different cancelling status arriving later must not restock again
	err = svc.HandleWebhook(ctx, webhook(res.OrderID, "deny"))
	require.NoError(t, err)
	assert.Equal(t, 5, st.variants[testVariant].stock)
}

func TestWebhook_PendingAfterSettlementIsStale(t *testing.T) {
	st := seedStore(5, 20000)
	svc, _, _ := newTestService(st)

	ctx := context.Background()
	res, err := svc.Create(ctx, pickupInput(1))
	require.NoError(t, err)

	require.NoError(t, svc.HandleWebhook(ctx, webhook(res.OrderID, "settlement")))

	// gateway notifications can arrive out of order; a late pending must not
	// downgrade a paid order
	err = svc.HandleWebhook(ctx, webhook(res.OrderID, "pending"))
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	latest, _ := st.LatestStatus(ctx, res.OrderID)
	assert.Equal(t, PaymentPaid, latest.PaymentStatus)
}

func TestWebhook_PendingAfterCancelIsStale(t *testing.T) {
	st := seedStore(5, 20000)
	svc, _, _ := newTestService(st)

	ctx := context.Background()
	res, err := svc.Create(ctx, pickupInput(1))
	require.NoError(t, err)

	require.NoError(t, svc.HandleWebhook(ctx, webhook(res.OrderID, "expire")))
	err = svc.HandleWebhook(ctx, webhook(res.OrderID, "pending"))
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestWebhook_UnknownTransactionStatus(t *testing.T) {
	st := seedStore(5, 20000)
	svc, _, _ := newTestService(st)

	res, err := svc.Create(context.Background(), pickupInput(1))
	require.NoError(t, err)

	err = svc.HandleWebhook(context.Background(), webhook(res.OrderID, "chargeback"))
	assert.Error(t, err)
}

func TestWebhook_UnknownOrder(t *testing.T) {
	st := seedStore(5, 20000)
	svc, _, _ := newTestService(st)

	err := svc.HandleWebhook(context.Background(), webhook("ORD-missing", "settlement"))
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
