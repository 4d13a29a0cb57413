package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/promo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	userID = int64(7)
	cartID = int64(70)
)

func newTestService(store Store) *Service {
	return &Service{
		Store:           store,
		Currency:        "EUR",
		DefaultCountry:  "FR",
		PaymentProvider: "mock",
		ServiceName:     "shop-api-test",
	}
}

func testAddress() orders.Address {
	return orders.Address{
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Address1:   "12 rue des Lilas",
		PostalCode: "75011",
		City:       "Paris",
	}
}

func checkoutRequest() Request {
	return Request{UserID: userID, Shipping: testAddress()}
}

// cart = [{variation A, price 10.00, qty 2, stock 5}]
func singleLineStore() *MemStore {
	store := NewMemStore()
	store.AddVariation(1, "Linen shirt", "10.00", 5)
	store.AddCartLine(userID, cartID, 1, 2)
	return store
}

func TestCheckout_SingleLine(t *testing.T) {
	store := singleLineStore()
	svc := newTestService(store)

	res, err := svc.Checkout(context.Background(), checkoutRequest())

	require.NoError(t, err)
	assert.Equal(t, "20.00", res.Total.StringFixed(2))
	assert.Equal(t, 3, store.Stock(1))
	assert.Equal(t, 0, store.CartSize(cartID))

	order, ok := store.Order(res.OrderID)
	require.True(t, ok)
	assert.Equal(t, orders.StatusPending, order.Status)
	assert.Equal(t, userID, order.UserID)
	assert.Equal(t, "EUR", order.Currency)
	assert.Equal(t, "20.00", order.Total.StringFixed(2))

	lines := store.OrderLines(res.OrderID)
	require.Len(t, lines, 1)
	assert.Equal(t, "Linen shirt", lines[0].ProductName)
	assert.Equal(t, "10.00", lines[0].UnitPrice.StringFixed(2))
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, "20.00", lines[0].LineTotal.StringFixed(2))

	payments := store.Payments(res.OrderID)
	require.Len(t, payments, 1)
	assert.Equal(t, orders.PaymentPending, payments[0].Status)
	assert.Equal(t, "20.00", payments[0].Amount.StringFixed(2))
	assert.Equal(t, "mock", payments[0].Provider)
}

func TestCheckout_PercentagePromotion(t *testing.T) {
	store := singleLineStore()
	store.AddPromo("SUMMER10", promo.KindPercentage, "10", true)
	svc := newTestService(store)

	req := checkoutRequest()
	req.PromoCode = " SUMMER10 "
	res, err := svc.Checkout(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "18.00", res.Total.StringFixed(2))
	assert.Equal(t, "18.00", store.Payments(res.OrderID)[0].Amount.StringFixed(2))
}

func TestCheckout_FixedPromotionClampsAtZero(t *testing.T) {
	store := singleLineStore()
	store.AddPromo("BIG", promo.KindFixed, "25", true)
	svc := newTestService(store)

	req := checkoutRequest()
	req.PromoCode = "BIG"
	res, err := svc.Checkout(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, res.Total.IsZero())
}

func TestCheckout_PercentageOver100ClampsAtZero(t *testing.T) {
	store := singleLineStore()
	store.AddPromo("FREE150", promo.KindPercentage, "150", true)
	svc := newTestService(store)

	req := checkoutRequest()
	req.PromoCode = "FREE150"
	res, err := svc.Checkout(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "0.00", res.Total.StringFixed(2))
	assert.Equal(t, "0.00", store.Payments(res.OrderID)[0].Amount.StringFixed(2))
}

func TestCheckout_InactiveOrUnknownPromotionIgnored(t *testing.T) {
	for _, code := range []string{"OLD", "NOPE"} {
		t.Run(code, func(t *testing.T) {
			store := singleLineStore()
			store.AddPromo("OLD", promo.KindPercentage, "50", false)
			svc := newTestService(store)

			req := checkoutRequest()
			req.PromoCode = code
			res, err := svc.Checkout(context.Background(), req)

			require.NoError(t, err)
			assert.Equal(t, "20.00", res.Total.StringFixed(2))
		})
	}
}

func TestCheckout_TotalIsRoundedSumOfLines(t *testing.T) {
	store := NewMemStore()
	store.AddVariation(1, "Socks", "19.99", 10)
	store.AddVariation(2, "Button", "0.333", 10)
	store.AddCartLine(userID, cartID, 1, 3)
	store.AddCartLine(userID, cartID, 2, 3)
	svc := newTestService(store)

	res, err := svc.Checkout(context.Background(), checkoutRequest())

	require.NoError(t, err)
	// 59.97 + 0.999 = 60.969
	assert.Equal(t, "60.97", res.Total.StringFixed(2))
	assert.Len(t, store.OrderLines(res.OrderID), 2)
}

func TestCheckout_OutOfStockWritesNothing(t *testing.T) {
	store := NewMemStore()
	store.AddVariation(1, "Linen shirt", "10.00", 5)
	store.AddVariation(2, "Scarf", "5.00", 1)
	store.AddCartLine(userID, cartID, 1, 2)
	store.AddCartLine(userID, cartID, 2, 3)
	svc := newTestService(store)

	_, err := svc.Checkout(context.Background(), checkoutRequest())

	var stockErr *OutOfStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(2), stockErr.VariationID)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)
	assert.False(t, stockErr.Raced)
	assert.Contains(t, stockErr.Error(), "available 1")
	assert.Equal(t, CodeOutOfStock, Code(err))

	assert.Equal(t, 0, store.OrderCount())
	assert.Equal(t, 0, store.PaymentCount())
	assert.Equal(t, 5, store.Stock(1))
	assert.Equal(t, 1, store.Stock(2))
	assert.Equal(t, 2, store.CartSize(cartID))
}

func TestCheckout_ZeroQuantityRejected(t *testing.T) {
	store := NewMemStore()
	store.AddVariation(1, "Linen shirt", "10.00", 5)
	store.AddCartLine(userID, cartID, 1, 0)
	svc := newTestService(store)

	_, err := svc.Checkout(context.Background(), checkoutRequest())

	assert.Equal(t, CodeOutOfStock, Code(err))
	assert.Equal(t, 0, store.OrderCount())
}

func TestCheckout_StockTakenAfterReadRollsBack(t *testing.T) {
	store := NewMemStore()
	store.AddVariation(1, "Linen shirt", "10.00", 5)
	store.AddVariation(2, "Scarf", "5.00", 1)
	store.AddCartLine(userID, cartID, 1, 2)
	store.AddCartLine(userID, cartID, 2, 3)
	store.StaleStock = map[int64]int{2: 10}
	svc := newTestService(store)

	_, err := svc.Checkout(context.Background(), checkoutRequest())

	var stockErr *OutOfStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(2), stockErr.VariationID)
	assert.True(t, stockErr.Raced)
	assert.NotContains(t, stockErr.Error(), "available")
	assert.Equal(t, 0, store.OrderCount())
	assert.Equal(t, 5, store.Stock(1), "earlier decrement rolled back")
	assert.Equal(t, 1, store.Stock(2))
}

func TestCheckout_CartEmpty(t *testing.T) {
	t.Run("no cart", func(t *testing.T) {
		svc := newTestService(NewMemStore())
		_, err := svc.Checkout(context.Background(), checkoutRequest())
		assert.ErrorIs(t, err, ErrCartEmpty)
	})
	t.Run("no lines", func(t *testing.T) {
		store := NewMemStore()
		store.AddCartLine(userID, cartID, 1, 1)
		store.state.cartLines[cartID] = map[int64]int{}
		svc := newTestService(store)
		_, err := svc.Checkout(context.Background(), checkoutRequest())
		assert.ErrorIs(t, err, ErrCartEmpty)
		assert.Equal(t, CodeCartEmpty, Code(err))
	})
}

func TestCheckout_Unauthenticated(t *testing.T) {
	store := singleLineStore()
	svc := newTestService(store)

	req := checkoutRequest()
	req.UserID = 0
	_, err := svc.Checkout(context.Background(), req)

	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, 5, store.Stock(1))
}

func TestCheckout_InvalidAddress(t *testing.T) {
	store := singleLineStore()
	svc := newTestService(store)

	req := checkoutRequest()
	req.Shipping.PostalCode = "   "
	_, err := svc.Checkout(context.Background(), req)

	var addrErr *AddressError
	require.ErrorAs(t, err, &addrErr)
	assert.Equal(t, "postal_code", addrErr.Field)
	assert.Equal(t, "shipping", addrErr.Address)
	assert.Equal(t, 0, store.OrderCount())
}

func TestCheckout_BillingDefaultsToShipping(t *testing.T) {
	store := singleLineStore()
	svc := newTestService(store)

	res, err := svc.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)

	order, _ := store.Order(res.OrderID)
	assert.Equal(t, order.Shipping, order.Billing)
	assert.Equal(t, "FR", order.Billing.Country)
}

func TestCheckout_SeparateBillingAddress(t *testing.T) {
	store := singleLineStore()
	svc := newTestService(store)

	billing := testAddress()
	billing.City = "Lyon"
	billing.Country = "BE"
	req := checkoutRequest()
	req.Billing = &billing
	res, err := svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	order, _ := store.Order(res.OrderID)
	assert.Equal(t, "Paris", order.Shipping.City)
	assert.Equal(t, "Lyon", order.Billing.City)
	assert.Equal(t, "BE", order.Billing.Country)
}

func TestCheckout_StorageFailureRollsBackEverything(t *testing.T) {
	for _, method := range []string{"CreateOrder", "InsertLine", "DecrementStock", "InsertPendingPayment", "ClearCart"} {
		t.Run(method, func(t *testing.T) {
			store := singleLineStore()
			store.FailOn = method
			svc := newTestService(store)

			_, err := svc.Checkout(context.Background(), checkoutRequest())

			require.Error(t, err)
			assert.True(t, errors.Is(err, errBoom))
			assert.Equal(t, CodeServerError, Code(err))
			assert.Equal(t, 0, store.OrderCount())
			assert.Equal(t, 0, store.PaymentCount())
			assert.Equal(t, 5, store.Stock(1))
			assert.Equal(t, 1, store.CartSize(cartID))
		})
	}
}

func TestCheckout_ConcurrentCheckoutsNeverOversell(t *testing.T) {
	store := NewMemStore()
	store.AddVariation(1, "Last shirts", "10.00", 3)
	const buyers = 10
	for i := int64(1); i <= buyers; i++ {
		store.AddCartLine(i, 100+i, 1, 2)
	}
	svc := newTestService(store)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		ok, failed int
	)
	for i := int64(1); i <= buyers; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			req := checkoutRequest()
			req.UserID = uid
			_, err := svc.Checkout(context.Background(), req)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if Code(err) == CodeOutOfStock {
				failed++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, buyers-1, failed)
	assert.Equal(t, 1, store.Stock(1))
	assert.Equal(t, 1, store.OrderCount())
}

func TestCheckout_PublishesEventAndCachesStatus(t *testing.T) {
	store := singleLineStore()
	pub := &MockPublisher{}
	cache := &MockStatusCache{}
	svc := newTestService(store)
	svc.Placed = pub
	svc.Status = cache

	req := checkoutRequest()
	req.TraceID = "req-1"
	res, err := svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, pub.Messages, 1)
	msg := pub.Messages[0]
	assert.Equal(t, orders.PartitionKey(res.OrderID), msg.Key)

	var env orders.Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, orders.EventOrderPlaced, env.EventType)
	assert.Equal(t, "req-1", env.TraceID)

	var payload orders.OrderPlacedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, res.OrderID, payload.OrderID)
	assert.Equal(t, "20.00", payload.Total)
	require.Len(t, payload.Lines, 1)
	assert.Equal(t, 2, payload.Lines[0].Quantity)

	assert.Equal(t, "pending", cache.Entries[res.OrderID].Status)
}

func TestCheckout_FailureDoesNotPublish(t *testing.T) {
	store := singleLineStore()
	store.FailOn = "ClearCart"
	pub := &MockPublisher{}
	svc := newTestService(store)
	svc.Placed = pub

	_, err := svc.Checkout(context.Background(), checkoutRequest())

	require.Error(t, err)
	assert.Empty(t, pub.Messages)
}

func TestCheckout_StatusCacheErrorIgnored(t *testing.T) {
	store := singleLineStore()
	svc := newTestService(store)
	svc.Status = &MockStatusCache{Err: errBoom}

	_, err := svc.Checkout(context.Background(), checkoutRequest())

	assert.NoError(t, err)
}
