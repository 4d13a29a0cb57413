package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-shop-checkout/internal/auth"
	"github.com/ariefcatur/go-shop-checkout/internal/cart"
	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testTokens = &auth.Tokens{Secret: []byte("test-secret"), TTL: time.Hour}

func bearerFor(t *testing.T, userID int64, role string) string {
	t.Helper()
	tok, _, err := testTokens.Issue(userID, role)
	require.NoError(t, err)
	return "Bearer " + tok
}

func newTestRouter(t *testing.T, register ...func(chi.Router)) (*chi.Mux, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	r := NewRouter(m, testTokens)
	for _, reg := range register {
		reg(r)
	}
	return r, m
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func newJSONRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func do(h http.Handler, method, path, authz, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := newJSONRequest(method, path, body)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return serve(h, req)
}

// MockCheckouter records calls and returns canned results.
type MockCheckouter struct {
	mu          sync.Mutex
	Checkouts   []checkout.Request
	Settles     []checkout.SettleRequest
	Result      checkout.Result
	Err         error
	SettleRes   checkout.SettleResult
	SettleError error
}

func (m *MockCheckouter) Checkout(_ context.Context, req checkout.Request) (checkout.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Checkouts = append(m.Checkouts, req)
	return m.Result, m.Err
}

func (m *MockCheckouter) Settle(_ context.Context, req checkout.SettleRequest) (checkout.SettleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Settles = append(m.Settles, req)
	return m.SettleRes, m.SettleError
}

type MockOrders struct {
	Orders        map[int64]*orders.Order
	OrderLines    map[int64][]orders.Line
	OrderPayments map[int64][]orders.Payment
	Gets          int
}

func (m *MockOrders) Get(_ context.Context, id int64) (*orders.Order, error) {
	m.Gets++
	o, ok := m.Orders[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return o, nil
}

func (m *MockOrders) ListForUser(_ context.Context, userID int64) ([]orders.Summary, error) {
	out := []orders.Summary{}
	for id := int64(1000); id > 0; id-- {
		if o, ok := m.Orders[id]; ok && o.UserID == userID {
			out = append(out, orders.Summary{ID: o.ID, Status: o.Status, Total: o.Total, Currency: o.Currency, CreatedAt: o.CreatedAt})
		}
	}
	return out, nil
}

func (m *MockOrders) Lines(_ context.Context, id int64) ([]orders.Line, error) {
	return m.OrderLines[id], nil
}

func (m *MockOrders) Payments(_ context.Context, id int64) ([]orders.Payment, error) {
	return m.OrderPayments[id], nil
}

// MockCarts keeps carts in memory; guest tokens map to cart ids.
type MockCarts struct {
	userCarts map[int64]int64
	tokens    map[string]int64
	lines     map[int64]map[int64]int
	known     map[int64]bool
	nextID    int64
}

func NewMockCarts(knownVariations ...int64) *MockCarts {
	m := &MockCarts{
		userCarts: map[int64]int64{},
		tokens:    map[string]int64{},
		lines:     map[int64]map[int64]int{},
		known:     map[int64]bool{},
		nextID:    1,
	}
	for _, v := range knownVariations {
		m.known[v] = true
	}
	return m
}

func (m *MockCarts) newCart() int64 {
	id := m.nextID
	m.nextID++
	m.lines[id] = map[int64]int{}
	return id
}

func (m *MockCarts) EnsureForUser(_ context.Context, userID int64) (int64, error) {
	if id, ok := m.userCarts[userID]; ok {
		return id, nil
	}
	id := m.newCart()
	m.userCarts[userID] = id
	return id, nil
}

func (m *MockCarts) EnsureForToken(_ context.Context, token string) (int64, string, bool, error) {
	if id, ok := m.tokens[token]; ok && token != "" {
		return id, token, false, nil
	}
	tok := cart.NewGuestToken()
	id := m.newCart()
	m.tokens[tok] = id
	return id, tok, true, nil
}

func (m *MockCarts) AddItem(_ context.Context, cartID, variationID int64, qty int) error {
	if !m.known[variationID] {
		return cart.ErrUnknownVariation
	}
	m.lines[cartID][variationID] = cart.CapQuantity(m.lines[cartID][variationID] + qty)
	return nil
}

func (m *MockCarts) SetQuantity(ctx context.Context, cartID, variationID int64, qty int) error {
	if qty <= 0 {
		return m.RemoveItem(ctx, cartID, variationID)
	}
	if !m.known[variationID] {
		return cart.ErrUnknownVariation
	}
	m.lines[cartID][variationID] = cart.CapQuantity(qty)
	return nil
}

func (m *MockCarts) RemoveItem(_ context.Context, cartID, variationID int64) error {
	delete(m.lines[cartID], variationID)
	return nil
}

func (m *MockCarts) Clear(_ context.Context, cartID int64) error {
	m.lines[cartID] = map[int64]int{}
	return nil
}

// Snapshot prices every variation at 2.50.
func (m *MockCarts) Snapshot(_ context.Context, cartID int64) (cart.Snapshot, error) {
	s := cart.Snapshot{CartID: cartID, Items: []cart.Item{}, TotalAmount: decimal.Zero}
	price := decimal.RequireFromString("2.50")
	for vid := int64(1); vid <= 100; vid++ {
		qty, ok := m.lines[cartID][vid]
		if !ok {
			continue
		}
		lt := price.Mul(decimal.NewFromInt(int64(qty)))
		s.Items = append(s.Items, cart.Item{VariationID: vid, Quantity: qty, UnitPrice: price, LineTotal: lt})
		s.CountItems++
		s.TotalQty += qty
		s.TotalAmount = s.TotalAmount.Add(lt)
	}
	return s, nil
}

type MockAuth struct {
	Session    *auth.Session
	Err        error
	MeUser     *auth.User
	MeErr      error
	Registered []auth.RegisterInput
}

func (m *MockAuth) Register(_ context.Context, in auth.RegisterInput) (*auth.Session, error) {
	m.Registered = append(m.Registered, in)
	return m.Session, m.Err
}

func (m *MockAuth) Login(_ context.Context, _ auth.LoginInput) (*auth.Session, error) {
	return m.Session, m.Err
}

func (m *MockAuth) Me(_ context.Context, _ int64) (*auth.User, error) {
	return m.MeUser, m.MeErr
}

type MockMerger struct {
	Calls []string
	Err   error
}

func (m *MockMerger) MergeGuest(_ context.Context, token string, _ int64) error {
	m.Calls = append(m.Calls, token)
	return m.Err
}
