//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront-backoffice/internal/domain/cart"
	"github.com/xenking/storefront-backoffice/internal/domain/order"
	"github.com/xenking/storefront-backoffice/internal/domain/product"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "store",
				"POSTGRES_PASSWORD": "store",
				"POSTGRES_DB":       "store",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://store:store@%s:%s/store?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	// Migrations must be re-runnable on every start.
	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrate twice: %v", err)
	}

	return m.Run()
}

func reset(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`TRUNCATE order_details, order_headers, cart_items, carts, products RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

func seedProducts(t *testing.T, prices ...string) []product.Product {
	t.Helper()
	ps := make([]product.Product, len(prices))
	for i, price := range prices {
		ps[i] = product.Product{
			Name:     fmt.Sprintf("Product %d", i+1),
			Price:    decimal.RequireFromString(price),
			ImageURL: fmt.Sprintf("https://img.example/%d.png", i+1),
			Stock:    10,
		}
	}
	n, err := NewProductRepository(testPool).Seed(context.Background(), ps)
	require.NoError(t, err)
	require.EqualValues(t, len(prices), n)

	list, err := NewProductRepository(testPool).List(context.Background())
	require.NoError(t, err)
	return list
}

func newOrderService(t *testing.T, opts ...order.Option) *order.Service {
	t.Helper()
	svc, err := order.NewService(NewOrderRepository(testPool), order.NewTrackingGenerator(10_000, 0.001), opts...)
	require.NoError(t, err)
	return svc
}

var shipping = order.CreateRequest{
	ShippingDate:  time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	Address:       "1 Infinite Loop",
	PaymentMethod: order.PaymentCashOnDelivery,
}

func TestProductRepository(t *testing.T) {
	reset(t)
	ctx := context.Background()
	repo := NewProductRepository(testPool)
	ps := seedProducts(t, "6.50", "7.00")

	got, err := repo.GetByID(ctx, ps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Product 1", got.Name)
	assert.True(t, decimal.RequireFromString("6.50").Equal(got.Price))

	_, err = repo.GetByID(ctx, 999)
	require.ErrorIs(t, err, product.ErrNotFound)

	price := decimal.RequireFromString("8.25")
	deleted := true
	updated, err := repo.Update(ctx, ps[1].ID, product.Patch{Price: &price, Deleted: &deleted})
	require.NoError(t, err)
	assert.True(t, price.Equal(updated.Price))
	assert.Equal(t, "Product 2", updated.Name, "unset fields stay")

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1, "soft-deleted products are hidden")

	_, err = repo.GetByID(ctx, ps[1].ID)
	require.ErrorIs(t, err, product.ErrNotFound)

	_, err = repo.Update(ctx, 999, product.Patch{Price: &price})
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestCartRepository(t *testing.T) {
	reset(t)
	ctx := context.Background()
	repo := NewCartRepository(testPool)
	ps := seedProducts(t, "100", "50")

	_, _, err := repo.Lines(ctx, "u1")
	require.ErrorIs(t, err, cart.ErrNotFound)

	c1, err := repo.Ensure(ctx, "u1")
	require.NoError(t, err)
	c2, err := repo.Ensure(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)

	require.NoError(t, repo.AddItem(ctx, "u1", ps[0].ID, 2))
	require.NoError(t, repo.AddItem(ctx, "u1", ps[0].ID, 3))
	require.NoError(t, repo.AddItem(ctx, "u1", ps[1].ID, 1))

	_, lines, err := repo.Lines(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 5, lines[0].Quantity)
	assert.True(t, decimal.NewFromInt(550).Equal(cart.Total(lines)))

	err = repo.AddItem(ctx, "u1", 999, 1)
	require.ErrorIs(t, err, product.ErrNotFound)

	require.NoError(t, repo.SetQuantity(ctx, "u1", ps[0].ID, 1))
	require.NoError(t, repo.SetQuantity(ctx, "u1", ps[1].ID, 0))
	_, lines, err = repo.Lines(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].Quantity)

	require.ErrorIs(t, repo.SetQuantity(ctx, "u1", ps[1].ID, 4), cart.ErrItemNotFound)
	require.NoError(t, repo.RemoveItem(ctx, "u1", ps[0].ID))
	require.ErrorIs(t, repo.RemoveItem(ctx, "u1", ps[0].ID), cart.ErrItemNotFound)
	require.ErrorIs(t, repo.RemoveItem(ctx, "u2", ps[0].ID), cart.ErrNotFound)

	require.NoError(t, repo.AddItem(ctx, "u1", ps[0].ID, 1))
	require.NoError(t, repo.Clear(ctx, "u1"))
	_, lines, err = repo.Lines(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, lines)

	require.NoError(t, repo.Delete(ctx, "u1"))
	require.ErrorIs(t, repo.Delete(ctx, "u1"), cart.ErrNotFound)
	require.ErrorIs(t, repo.Clear(ctx, "u1"), cart.ErrNotFound)
}

func TestCartAddItemQuantityLimit(t *testing.T) {
	reset(t)
	ctx := context.Background()
	repo := NewCartRepository(testPool)
	ps := seedProducts(t, "1")

	require.NoError(t, repo.AddItem(ctx, "u1", ps[0].ID, cart.MaxQuantity-1))

	var qtyErr *cart.InvalidQuantityError
	require.ErrorAs(t, repo.AddItem(ctx, "u1", ps[0].ID, 2), &qtyErr)
	assert.Equal(t, cart.MaxQuantity+1, qtyErr.Quantity)

	require.NoError(t, repo.AddItem(ctx, "u1", ps[0].ID, 1))
	_, lines, err := repo.Lines(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, cart.MaxQuantity, lines[0].Quantity)
}

func TestCartConcurrentAdds(t *testing.T) {
	reset(t)
	ctx := context.Background()
	repo := NewCartRepository(testPool)
	ps := seedProducts(t, "1")

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			assert.NoError(t, repo.AddItem(ctx, "u1", ps[0].ID, 1))
		})
	}
	wg.Wait()

	_, lines, err := repo.Lines(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 20, lines[0].Quantity)
}

func TestCheckout(t *testing.T) {
	reset(t)
	ctx := context.Background()
	carts := NewCartRepository(testPool)
	products := NewProductRepository(testPool)
	svc := newOrderService(t)
	ps := seedProducts(t, "100", "50")

	_, err := svc.Create(ctx, "u1", shipping)
	require.ErrorIs(t, err, order.ErrEmptyCart, "no cart")

	_, err = carts.Ensure(ctx, "u1")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "u1", shipping)
	require.ErrorIs(t, err, order.ErrEmptyCart, "empty cart")

	require.NoError(t, carts.AddItem(ctx, "u1", ps[0].ID, 2))
	require.NoError(t, carts.AddItem(ctx, "u1", ps[1].ID, 1))

	created, err := svc.Create(ctx, "u1", shipping)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.True(t, decimal.NewFromInt(250).Equal(created.Total))

	_, lines, err := carts.Lines(ctx, "u1")
	require.NoError(t, err, "cart survives checkout")
	assert.Empty(t, lines)

	// Repricing the catalog must not reach the stored order.
	newPrice := decimal.NewFromInt(999)
	_, err = products.Update(ctx, ps[0].ID, product.Patch{Price: &newPrice})
	require.NoError(t, err)

	got, err := svc.GetMine(ctx, "u1", created.TrackingNumber[4:])
	require.NoError(t, err)
	require.Len(t, got.Details, 2)
	assert.True(t, decimal.NewFromInt(100).Equal(got.Details[0].Price))
	assert.Equal(t, "Product 1", got.Details[0].Name)
	assert.True(t, decimal.NewFromInt(250).Equal(got.Total))

	_, err = testPool.Exec(ctx, `UPDATE order_details SET price = 1`)
	require.Error(t, err, "order lines are immutable")
}

func TestCheckoutConcurrent(t *testing.T) {
	reset(t)
	ctx := context.Background()
	carts := NewCartRepository(testPool)
	svc := newOrderService(t)
	ps := seedProducts(t, "10")
	require.NoError(t, carts.AddItem(ctx, "u1", ps[0].ID, 1))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		empty     int
	)
	for range 4 {
		wg.Go(func() {
			_, err := svc.Create(ctx, "u1", shipping)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case assert.ErrorIs(t, err, order.ErrEmptyCart):
				empty++
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 3, empty)
}

func TestCheckoutTrackingCollision(t *testing.T) {
	reset(t)
	ctx := context.Background()
	carts := NewCartRepository(testPool)
	repo := NewOrderRepository(testPool)
	ps := seedProducts(t, "10")

	build := func(lines []cart.Line) (*order.Order, error) {
		return &order.Order{
			TrackingNumber: "TRK-DEADBEEF",
			UserID:         "u1",
			Address:        "x",
			OrderDate:      time.Now().UTC(),
			ShippingDate:   time.Now().UTC(),
			Total:          cart.Total(lines),
			Details: []order.Detail{{
				ProductID: lines[0].ProductID, Quantity: lines[0].Quantity, Price: lines[0].Price,
			}},
		}, nil
	}

	require.NoError(t, carts.AddItem(ctx, "u1", ps[0].ID, 1))
	_, err := repo.Checkout(ctx, "u1", false, build)
	require.NoError(t, err)

	require.NoError(t, carts.AddItem(ctx, "u1", ps[0].ID, 1))
	_, err = repo.Checkout(ctx, "u1", false, build)
	require.ErrorIs(t, err, order.ErrTrackingNumberTaken)

	_, lines, err := carts.Lines(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, lines, 1, "failed checkout leaves the cart untouched")

	var numbers []string
	require.NoError(t, repo.TrackingNumbers(ctx, func(n string) { numbers = append(numbers, n) }))
	assert.Equal(t, []string{"TRK-DEADBEEF"}, numbers)
}

func TestCheckoutReservesStock(t *testing.T) {
	reset(t)
	ctx := context.Background()
	carts := NewCartRepository(testPool)
	products := NewProductRepository(testPool)
	svc := newOrderService(t, order.WithStockReservation(true))
	ps := seedProducts(t, "10", "20")

	require.NoError(t, carts.AddItem(ctx, "u1", ps[0].ID, 4))
	_, err := svc.Create(ctx, "u1", shipping)
	require.NoError(t, err)

	p, err := products.GetByID(ctx, ps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 6, p.Stock)

	require.NoError(t, carts.AddItem(ctx, "u1", ps[0].ID, 7))
	_, err = svc.Create(ctx, "u1", shipping)
	var stockErr *order.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 6, stockErr.Available)

	p, err = products.GetByID(ctx, ps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 6, p.Stock, "rolled back")
}

func TestFindOrders(t *testing.T) {
	reset(t)
	ctx := context.Background()
	carts := NewCartRepository(testPool)
	ps := seedProducts(t, "10")

	day := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	clock := day
	svc := newOrderService(t, order.WithClock(func() time.Time { return clock }))

	var placed []*order.Order
	for i := range 15 {
		require.NoError(t, carts.AddItem(ctx, "u1", ps[0].ID, 1))
		o, err := svc.Create(ctx, "u1", shipping)
		require.NoError(t, err)
		placed = append(placed, o)
		clock = clock.Add(time.Hour)
		if i == 9 {
			clock = day.Add(48 * time.Hour)
		}
	}
	require.NoError(t, carts.AddItem(ctx, "u2", ps[0].ID, 1))
	_, err := svc.Create(ctx, "u2", shipping)
	require.NoError(t, err)

	page, err := svc.ListMine(ctx, "u1", order.ListRequest{Page: order.PageRequest{Number: 2, Size: 10}})
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)
	assert.Equal(t, 15, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, placed[4].TrackingNumber, page.Items[0].TrackingNumber)

	page, err = svc.ListMine(ctx, "u1", order.ListRequest{
		TrackingNumber: placed[3].TrackingNumber,
		Page:           order.PageRequest{Number: 1, Size: 10},
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	page, err = svc.ListAll(ctx, order.AdminListRequest{
		OrderDate: &day,
		Page:      order.PageRequest{Number: 1, Size: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, page.TotalItems)

	page, err = svc.ListAll(ctx, order.AdminListRequest{
		TrackingNumber: "%",
		Page:           order.PageRequest{Number: 1, Size: 100},
	})
	require.NoError(t, err)
	assert.Zero(t, page.TotalItems, "LIKE wildcards are matched literally")

	_, err = svc.Edit(ctx, placed[14].TrackingNumber, order.EditRequest{
		ShippingDate: shipping.ShippingDate, Address: "x", Status: order.StatusDelivered,
	})
	require.NoError(t, err)
	page, err = svc.ListAll(ctx, order.AdminListRequest{
		SortBy: order.SortByOrderStatus,
		Page:   order.PageRequest{Number: 1, Size: 100},
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 16)
	assert.Equal(t, placed[14].TrackingNumber, page.Items[15].TrackingNumber)
}

func TestUpdateOrder(t *testing.T) {
	reset(t)
	ctx := context.Background()
	carts := NewCartRepository(testPool)
	ps := seedProducts(t, "10")

	created := time.Now().UTC()
	clock := created
	svc := newOrderService(t, order.WithClock(func() time.Time { return clock }))

	require.NoError(t, carts.AddItem(ctx, "u1", ps[0].ID, 1))
	o, err := svc.Create(ctx, "u1", shipping)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, "u2", o.TrackingNumber)
	require.ErrorIs(t, err, order.ErrNotFound)

	clock = created.Add(7 * time.Hour)
	_, err = svc.Cancel(ctx, "u1", o.TrackingNumber)
	require.ErrorIs(t, err, order.ErrCancellationWindowExpired)

	clock = created.Add(time.Hour)
	got, err := svc.Cancel(ctx, "u1", o.TrackingNumber)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)

	stored, err := svc.GetMine(ctx, "u1", o.TrackingNumber)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, stored.Status)
	assert.True(t, o.Total.Equal(stored.Total))
}
