package checkout

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/ariefcatur/go-shop-checkout/internal/cart"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/promo"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

var errBoom = errors.New("boom")

type memVariation struct {
	ProductID int64
	Name      string
	Price     decimal.Decimal
	Stock     int
}

type memState struct {
	variations map[int64]memVariation
	userCarts  map[int64]int64
	cartLines  map[int64]map[int64]int // cart -> variation -> qty
	promos     map[string]promo.Rule
	orders     map[int64]orders.Order
	lines      map[int64][]orders.Line
	payments   []orders.Payment
	nextOrder  int64
}

func (s memState) clone() memState {
	c := s
	c.variations = maps.Clone(s.variations)
	c.userCarts = maps.Clone(s.userCarts)
	c.cartLines = make(map[int64]map[int64]int, len(s.cartLines))
	for k, v := range s.cartLines {
		c.cartLines[k] = maps.Clone(v)
	}
	c.promos = maps.Clone(s.promos)
	c.orders = maps.Clone(s.orders)
	c.lines = make(map[int64][]orders.Line, len(s.lines))
	for k, v := range s.lines {
		c.lines[k] = append([]orders.Line(nil), v...)
	}
	c.payments = append([]orders.Payment(nil), s.payments...)
	return c
}

// MemStore is an in-memory Store. WithTx serialises transactions (like row
// locks would) and only keeps a transaction's writes when fn returns nil.
type MemStore struct {
	mu    sync.Mutex
	state memState

	FailOn     string        // Tx method name that returns errBoom
	StaleStock map[int64]int // stock reported by CartLines instead of the real one
}

func NewMemStore() *MemStore {
	return &MemStore{state: memState{
		variations: map[int64]memVariation{},
		userCarts:  map[int64]int64{},
		cartLines:  map[int64]map[int64]int{},
		promos:     map[string]promo.Rule{},
		orders:     map[int64]orders.Order{},
		lines:      map[int64][]orders.Line{},
		nextOrder:  1,
	}}
}

func (m *MemStore) WithTx(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(&memTx{st: &work, store: m}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// --- fixtures ---

func (m *MemStore) AddVariation(id int64, name, price string, stock int) {
	m.state.variations[id] = memVariation{ProductID: id * 100, Name: name, Price: decimal.RequireFromString(price), Stock: stock}
}

func (m *MemStore) AddCartLine(userID, cartID, variationID int64, qty int) {
	m.state.userCarts[userID] = cartID
	if m.state.cartLines[cartID] == nil {
		m.state.cartLines[cartID] = map[int64]int{}
	}
	m.state.cartLines[cartID][variationID] = qty
}

func (m *MemStore) AddPromo(code string, kind promo.Kind, value string, active bool) {
	m.state.promos[code] = promo.Rule{Code: code, Kind: kind, Value: decimal.RequireFromString(value), Active: active}
}

func (m *MemStore) AddOrder(o orders.Order) {
	m.state.orders[o.ID] = o
	if o.ID >= m.state.nextOrder {
		m.state.nextOrder = o.ID + 1
	}
}

// --- inspection ---

func (m *MemStore) Stock(variationID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.variations[variationID].Stock
}

func (m *MemStore) CartSize(cartID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.cartLines[cartID])
}

func (m *MemStore) Order(id int64) (orders.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	return o, ok
}

func (m *MemStore) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.orders)
}

func (m *MemStore) OrderLines(id int64) []orders.Line {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.lines[id]
}

func (m *MemStore) Payments(orderID int64) []orders.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orders.Payment
	for _, p := range m.state.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out
}

func (m *MemStore) PaymentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.payments)
}

// --- Tx ---

type memTx struct {
	st    *memState
	store *MemStore
}

func (t *memTx) fail(method string) error {
	if t.store.FailOn == method {
		return errBoom
	}
	return nil
}

func (t *memTx) UserCartID(_ context.Context, userID int64) (int64, error) {
	if err := t.fail("UserCartID"); err != nil {
		return 0, err
	}
	id, ok := t.st.userCarts[userID]
	if !ok {
		return 0, cart.ErrNoCart
	}
	return id, nil
}

func (t *memTx) CartLines(_ context.Context, cartID int64) ([]cart.Line, error) {
	if err := t.fail("CartLines"); err != nil {
		return nil, err
	}
	var out []cart.Line
	for vid := int64(1); vid <= 1000; vid++ { // deterministic order
		qty, ok := t.st.cartLines[cartID][vid]
		if !ok {
			continue
		}
		v := t.st.variations[vid]
		stock := v.Stock
		if s, ok := t.store.StaleStock[vid]; ok {
			stock = s
		}
		out = append(out, cart.Line{
			VariationID: vid, ProductID: v.ProductID, ProductName: v.Name,
			Quantity: qty, UnitPrice: v.Price, Stock: stock,
		})
	}
	return out, nil
}

func (t *memTx) ClearCart(_ context.Context, cartID int64) error {
	if err := t.fail("ClearCart"); err != nil {
		return err
	}
	t.st.cartLines[cartID] = map[int64]int{}
	return nil
}

func (t *memTx) Promotion(_ context.Context, code string) (promo.Rule, bool, error) {
	if err := t.fail("Promotion"); err != nil {
		return promo.Rule{}, false, err
	}
	r, ok := t.st.promos[code]
	return r, ok, nil
}

func (t *memTx) CreateOrder(_ context.Context, o orders.NewOrder) (int64, error) {
	if err := t.fail("CreateOrder"); err != nil {
		return 0, err
	}
	id := t.st.nextOrder
	t.st.nextOrder++
	t.st.orders[id] = orders.Order{
		ID: id, UserID: o.UserID, CartID: o.CartID, Status: orders.StatusPending,
		Total: o.Total, Currency: o.Currency, Shipping: o.Shipping, Billing: o.Billing,
	}
	return id, nil
}

func (t *memTx) InsertLine(_ context.Context, orderID int64, l orders.Line) error {
	if err := t.fail("InsertLine"); err != nil {
		return err
	}
	l.OrderID = orderID
	t.st.lines[orderID] = append(t.st.lines[orderID], l)
	return nil
}

func (t *memTx) DecrementStock(_ context.Context, variationID int64, qty int) error {
	if err := t.fail("DecrementStock"); err != nil {
		return err
	}
	v := t.st.variations[variationID]
	if v.Stock < qty {
		return orders.ErrInsufficientStock
	}
	v.Stock -= qty
	t.st.variations[variationID] = v
	return nil
}

func (t *memTx) InsertPendingPayment(_ context.Context, orderID int64, amount decimal.Decimal, provider string) error {
	if err := t.fail("InsertPendingPayment"); err != nil {
		return err
	}
	t.st.payments = append(t.st.payments, orders.Payment{OrderID: orderID, Amount: amount, Status: orders.PaymentPending, Provider: provider})
	return nil
}

func (t *memTx) InsertValidatedPayment(_ context.Context, orderID int64, amount decimal.Decimal, provider, ref string) error {
	if err := t.fail("InsertValidatedPayment"); err != nil {
		return err
	}
	t.st.payments = append(t.st.payments, orders.Payment{
		OrderID: orderID, Amount: amount, Status: orders.PaymentValidated, Provider: provider, TransactionRef: ref,
	})
	return nil
}

func (t *memTx) GetOrderForUpdate(_ context.Context, orderID int64) (*orders.Order, error) {
	if err := t.fail("GetOrderForUpdate"); err != nil {
		return nil, err
	}
	o, ok := t.st.orders[orderID]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return &o, nil
}

func (t *memTx) SetOrderStatus(_ context.Context, orderID int64, s orders.Status) error {
	if err := t.fail("SetOrderStatus"); err != nil {
		return err
	}
	o, ok := t.st.orders[orderID]
	if !ok {
		return orders.ErrNotFound
	}
	o.Status = s
	t.st.orders[orderID] = o
	return nil
}

// --- collaborators ---

type MockPublisher struct {
	mu       sync.Mutex
	Messages []kafkago.Message
}

func (p *MockPublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages = append(p.Messages, kafkago.Message{Key: key, Value: value, Headers: headers})
}

type MockStatusCache struct {
	mu      sync.Mutex
	Entries map[int64]redisx.StatusEntry
	Err     error
}

func (c *MockStatusCache) Set(_ context.Context, e redisx.StatusEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	if c.Entries == nil {
		c.Entries = map[int64]redisx.StatusEntry{}
	}
	c.Entries[e.OrderID] = e
	return nil
}
