package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftmarket/giftmarket-backend/internal/catalog"
	"github.com/giftmarket/giftmarket-backend/internal/ledger"
	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
	"github.com/giftmarket/giftmarket-backend/pkg/outbox"
	"github.com/giftmarket/giftmarket-backend/pkg/pagination"
	"github.com/giftmarket/giftmarket-backend/pkg/types"
)

type fakeRepository struct {
	orders map[uuid.UUID]*models.Order
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{orders: map[uuid.UUID]*models.Order{}}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(_ context.Context, order *models.Order) error {
	order.ID = uuid.New()
	order.CreatedAt = time.Now()
	copied := *order
	f.orders[order.ID] = &copied
	return nil
}

func (f *fakeRepository) Find(_ context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeRepository) FindForAccount(_ context.Context, accountID, id uuid.UUID) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok || order.AccountID != accountID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeRepository) List(_ context.Context, accountID uuid.UUID, limit int, _ *pagination.Cursor) ([]models.Order, error) {
	var rows []models.Order
	for _, order := range f.orders {
		if order.AccountID == accountID {
			rows = append(rows, *order)
		}
		if len(rows) == limit {
			break
		}
	}
	return rows, nil
}

func (f *fakeRepository) UpdateStatusGuarded(_ context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	order, ok := f.orders[id]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	if fulfillment, ok := updates["fulfillment"]; ok {
		order.Fulfillment = fulfillment.(*types.Fulfillment)
	}
	if completedAt, ok := updates["completed_at"]; ok {
		at := completedAt.(time.Time)
		order.CompletedAt = &at
	}
	if cancelledAt, ok := updates["cancelled_at"]; ok {
		at := cancelledAt.(time.Time)
		order.CancelledAt = &at
	}
	return true, nil
}

type fakeCatalogRepo struct {
	products map[uuid.UUID]*models.Product
}

func newFakeCatalogRepo(products ...*models.Product) *fakeCatalogRepo {
	repo := &fakeCatalogRepo{products: map[uuid.UUID]*models.Product{}}
	for _, product := range products {
		repo.products[product.ID] = product
	}
	return repo
}

func (f *fakeCatalogRepo) WithTx(tx *gorm.DB) catalog.Repository { return f }

func (f *fakeCatalogRepo) FindProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	product, ok := f.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *product
	return &copied, nil
}

func (f *fakeCatalogRepo) ListActive(_ context.Context) ([]models.Product, error) {
	return nil, nil
}

func (f *fakeCatalogRepo) ReserveStock(_ context.Context, id uuid.UUID, qty int) (bool, error) {
	product, ok := f.products[id]
	if !ok || !product.Active || product.Stock < qty {
		return false, nil
	}
	product.Stock -= qty
	product.SalesCount += int64(qty)
	return true, nil
}

func (f *fakeCatalogRepo) ReleaseStock(_ context.Context, id uuid.UUID, qty int) error {
	product, ok := f.products[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	product.Stock += qty
	product.SalesCount -= int64(qty)
	return nil
}

type fakeLedger struct {
	balances map[uuid.UUID]int64
	debits   []int64
	credits  []int64
}

func newFakeLedger(accountID uuid.UUID, balanceCents int64) *fakeLedger {
	return &fakeLedger{balances: map[uuid.UUID]int64{accountID: balanceCents}}
}

func (f *fakeLedger) Debit(_ context.Context, _ *gorm.DB, input ledger.DebitInput) (*models.Transaction, error) {
	balance, ok := f.balances[input.AccountID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	if balance < input.AmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "available funds below debit amount")
	}
	f.balances[input.AccountID] = balance - input.AmountCents
	f.debits = append(f.debits, input.AmountCents)
	return &models.Transaction{ID: uuid.New(), AccountID: input.AccountID, AmountCents: -input.AmountCents}, nil
}

func (f *fakeLedger) Credit(_ context.Context, _ *gorm.DB, input ledger.CreditInput) (*models.Transaction, error) {
	f.balances[input.AccountID] += input.AmountCents
	f.credits = append(f.credits, input.AmountCents)
	return &models.Transaction{ID: uuid.New(), AccountID: input.AccountID, AmountCents: input.AmountCents}, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

type testFixture struct {
	svc     Service
	repo    *fakeRepository
	catalog *fakeCatalogRepo
	ledger  *fakeLedger
	outbox  *fakeOutbox
}

func newFixture(t *testing.T, balanceCents int64, products ...*models.Product) (*testFixture, uuid.UUID) {
	t.Helper()
	accountID := uuid.New()
	fixture := &testFixture{
		repo:    newFakeRepository(),
		catalog: newFakeCatalogRepo(products...),
		ledger:  newFakeLedger(accountID, balanceCents),
		outbox:  &fakeOutbox{},
	}
	svc, err := NewService(fixture.repo, fixture.catalog, fixture.ledger, fakeTxRunner{}, fixture.outbox)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	fixture.svc = svc
	return fixture, accountID
}

func TestPurchase_DebitsAndReservesStock(t *testing.T) {
	product := &models.Product{ID: uuid.New(), Name: "eSIM 5GB", Category: enums.OrderCategoryESIM, PriceCents: 4000, Stock: 2, Active: true}
	fixture, accountID := newFixture(t, 10000, product)

	order, err := fixture.svc.Purchase(context.Background(), PurchaseInput{AccountID: accountID, ProductID: product.ID})
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if order.Status != enums.OrderStatusPending {
		t.Fatalf("expected pending, got %s", order.Status)
	}
	if order.PriceCents != 4000 {
		t.Fatalf("expected snapshotted price 4000, got %d", order.PriceCents)
	}
	if fixture.ledger.balances[accountID] != 6000 {
		t.Fatalf("expected balance 6000, got %d", fixture.ledger.balances[accountID])
	}
	if product.Stock != 1 || product.SalesCount != 1 {
		t.Fatalf("expected stock reserved, got stock=%d sales=%d", product.Stock, product.SalesCount)
	}
	if len(fixture.outbox.events) != 1 || fixture.outbox.events[0].EventType != enums.EventOrderCreated {
		t.Fatalf("expected one order_created event, got %+v", fixture.outbox.events)
	}
}

func TestPurchase_InsufficientFundsLeavesNoOrder(t *testing.T) {
	product := &models.Product{ID: uuid.New(), PriceCents: 4000, Stock: 2, Active: true}
	fixture, accountID := newFixture(t, 1000, product)

	_, err := fixture.svc.Purchase(context.Background(), PurchaseInput{AccountID: accountID, ProductID: product.ID})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if len(fixture.repo.orders) != 0 {
		t.Fatalf("expected no order row, got %d", len(fixture.repo.orders))
	}
	if len(fixture.outbox.events) != 0 {
		t.Fatalf("expected no events, got %d", len(fixture.outbox.events))
	}
}

func TestPurchase_UnavailableProduct(t *testing.T) {
	inactive := &models.Product{ID: uuid.New(), PriceCents: 100, Stock: 5, Active: false}
	outOfStock := &models.Product{ID: uuid.New(), PriceCents: 100, Stock: 0, Active: true}
	fixture, accountID := newFixture(t, 10000, inactive, outOfStock)

	for _, productID := range []uuid.UUID{inactive.ID, outOfStock.ID} {
		_, err := fixture.svc.Purchase(context.Background(), PurchaseInput{AccountID: accountID, ProductID: productID})
		if !pkgerrors.HasCode(err, pkgerrors.CodeProductUnavailable) {
			t.Fatalf("expected product unavailable for %s, got %v", productID, err)
		}
	}
}

func TestAdvance_LegalPath(t *testing.T) {
	fixture, accountID := newFixture(t, 0)

	order := &models.Order{AccountID: accountID, Category: enums.OrderCategoryVPN, PriceCents: 100, Status: enums.OrderStatusPending}
	if err := fixture.repo.Create(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	advanced, err := fixture.svc.Advance(context.Background(), AdvanceInput{OrderID: order.ID, Target: enums.OrderStatusProcessing})
	if err != nil {
		t.Fatalf("Advance to processing: %v", err)
	}
	if advanced.Status != enums.OrderStatusProcessing {
		t.Fatalf("expected processing, got %s", advanced.Status)
	}

	fulfillment := &types.Fulfillment{
		Category: enums.OrderCategoryVPN,
		VPN:      &types.VPNFulfillment{Username: "u", Password: "p", Server: "vpn1.example.com"},
	}
	advanced, err = fixture.svc.Advance(context.Background(), AdvanceInput{
		OrderID:     order.ID,
		Target:      enums.OrderStatusCompleted,
		Fulfillment: fulfillment,
	})
	if err != nil {
		t.Fatalf("Advance to completed: %v", err)
	}
	if advanced.Status != enums.OrderStatusCompleted || advanced.Fulfillment == nil {
		t.Fatalf("expected completed with fulfillment, got %+v", advanced)
	}
	if advanced.CompletedAt == nil {
		t.Fatal("expected completed_at set")
	}
}

func TestAdvance_IllegalTransitionLeavesStatus(t *testing.T) {
	fixture, accountID := newFixture(t, 0)

	order := &models.Order{AccountID: accountID, Status: enums.OrderStatusPending}
	if err := fixture.repo.Create(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	_, err := fixture.svc.Advance(context.Background(), AdvanceInput{OrderID: order.ID, Target: enums.OrderStatusCompleted})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if fixture.repo.orders[order.ID].Status != enums.OrderStatusPending {
		t.Fatalf("status changed on illegal transition: %s", fixture.repo.orders[order.ID].Status)
	}
	if len(fixture.outbox.events) != 0 {
		t.Fatalf("expected no events, got %d", len(fixture.outbox.events))
	}
}

func TestAdvance_TerminalStateRejected(t *testing.T) {
	fixture, accountID := newFixture(t, 0)

	order := &models.Order{AccountID: accountID, Status: enums.OrderStatusCancelled}
	if err := fixture.repo.Create(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	_, err := fixture.svc.Advance(context.Background(), AdvanceInput{OrderID: order.ID, Target: enums.OrderStatusProcessing})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestAdvance_FulfillmentOnlyWhenCompleting(t *testing.T) {
	fixture, accountID := newFixture(t, 0)

	order := &models.Order{AccountID: accountID, Category: enums.OrderCategoryVPN, Status: enums.OrderStatusPending}
	if err := fixture.repo.Create(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	fulfillment := &types.Fulfillment{
		Category: enums.OrderCategoryVPN,
		VPN:      &types.VPNFulfillment{Username: "u", Password: "p", Server: "vpn1.example.com"},
	}
	_, err := fixture.svc.Advance(context.Background(), AdvanceInput{
		OrderID:     order.ID,
		Target:      enums.OrderStatusProcessing,
		Fulfillment: fulfillment,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAdvance_FulfillmentCategoryMismatch(t *testing.T) {
	fixture, accountID := newFixture(t, 0)

	order := &models.Order{AccountID: accountID, Category: enums.OrderCategoryESIM, Status: enums.OrderStatusProcessing}
	if err := fixture.repo.Create(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	fulfillment := &types.Fulfillment{
		Category: enums.OrderCategoryVPN,
		VPN:      &types.VPNFulfillment{Username: "u", Password: "p", Server: "vpn1.example.com"},
	}
	_, err := fixture.svc.Advance(context.Background(), AdvanceInput{
		OrderID:     order.ID,
		Target:      enums.OrderStatusCompleted,
		Fulfillment: fulfillment,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fixture.repo.orders[order.ID].Status != enums.OrderStatusProcessing {
		t.Fatal("status changed on rejected fulfillment")
	}
}

func TestCancel_RefundsAndReleasesStock(t *testing.T) {
	product := &models.Product{ID: uuid.New(), PriceCents: 4000, Stock: 1, Active: true}
	fixture, accountID := newFixture(t, 4000, product)

	order, err := fixture.svc.Purchase(context.Background(), PurchaseInput{AccountID: accountID, ProductID: product.ID})
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}

	cancelled, err := fixture.svc.Cancel(context.Background(), accountID, order.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if fixture.ledger.balances[accountID] != 4000 {
		t.Fatalf("expected full refund, balance %d", fixture.ledger.balances[accountID])
	}
	if product.Stock != 1 {
		t.Fatalf("expected stock released, got %d", product.Stock)
	}
	if len(fixture.ledger.credits) != 1 || fixture.ledger.credits[0] != 4000 {
		t.Fatalf("expected one refund credit of 4000, got %v", fixture.ledger.credits)
	}
}

func TestCancel_CompletedOrderRejected(t *testing.T) {
	fixture, accountID := newFixture(t, 0)

	order := &models.Order{AccountID: accountID, Status: enums.OrderStatusCompleted}
	if err := fixture.repo.Create(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	_, err := fixture.svc.Cancel(context.Background(), accountID, order.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if len(fixture.ledger.credits) != 0 {
		t.Fatalf("expected no credit, got %v", fixture.ledger.credits)
	}
}

func TestGet_HidesFulfillmentUntilCompleted(t *testing.T) {
	fixture, accountID := newFixture(t, 0)

	fulfillment := &types.Fulfillment{
		Category: enums.OrderCategoryGift,
		Gift:     &types.GiftFulfillment{RedemptionCode: "CODE-1"},
	}
	order := &models.Order{AccountID: accountID, Category: enums.OrderCategoryGift, Status: enums.OrderStatusProcessing, Fulfillment: fulfillment}
	if err := fixture.repo.Create(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	got, err := fixture.svc.Get(context.Background(), accountID, order.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Fulfillment != nil {
		t.Fatal("expected fulfillment hidden before completion")
	}

	fixture.repo.orders[order.ID].Status = enums.OrderStatusCompleted
	got, err = fixture.svc.Get(context.Background(), accountID, order.ID)
	if err != nil {
		t.Fatalf("Get completed: %v", err)
	}
	if got.Fulfillment == nil {
		t.Fatal("expected fulfillment visible after completion")
	}
}

func TestGet_OtherAccountNotFound(t *testing.T) {
	fixture, accountID := newFixture(t, 0)

	order := &models.Order{AccountID: accountID, Status: enums.OrderStatusPending}
	if err := fixture.repo.Create(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	_, err := fixture.svc.Get(context.Background(), uuid.New(), order.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	legal := [][2]enums.OrderStatus{
		{enums.OrderStatusPending, enums.OrderStatusProcessing},
		{enums.OrderStatusPending, enums.OrderStatusCancelled},
		{enums.OrderStatusProcessing, enums.OrderStatusCompleted},
		{enums.OrderStatusProcessing, enums.OrderStatusRefunded},
	}
	for _, pair := range legal {
		if !CanTransition(pair[0], pair[1]) {
			t.Fatalf("expected %s -> %s legal", pair[0], pair[1])
		}
	}

	illegal := [][2]enums.OrderStatus{
		{enums.OrderStatusPending, enums.OrderStatusCompleted},
		{enums.OrderStatusCompleted, enums.OrderStatusProcessing},
		{enums.OrderStatusCancelled, enums.OrderStatusPending},
		{enums.OrderStatusRefunded, enums.OrderStatusCompleted},
	}
	for _, pair := range illegal {
		if CanTransition(pair[0], pair[1]) {
			t.Fatalf("expected %s -> %s illegal", pair[0], pair[1])
		}
	}
}
