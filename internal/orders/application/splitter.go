package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	escrow "marketplace-settlement/internal/escrow/domain"
	inventory "marketplace-settlement/internal/inventory/domain"
	"marketplace-settlement/internal/kernel"
	orders "marketplace-settlement/internal/orders/domain"
	"marketplace-settlement/internal/pricing"
)

// CartItem is one product line the buyer wants. VendorID may be empty, in
// which case the catalog decides it.
type CartItem struct {
	ProductID string `json:"product_id"`
	VendorID  string `json:"vendor_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

// Cart is a checkout request.
type Cart struct {
	BuyerID     string              `json:"buyer_id"`
	Items       []CartItem          `json:"items"`
	PaymentType pricing.PaymentType `json:"payment_type"`
	Months      int                 `json:"months"`
}

// VendorFailure records why a vendor group could not be ordered.
type VendorFailure struct {
	VendorID string `json:"vendor_id"`
	Err      error  `json:"-"`
}

// SplitResult is the outcome of a split. Failures lists vendor groups that
// were rolled back; the other groups stand.
type SplitResult struct {
	Order     *orders.Order
	SubOrders []*orders.SubOrder
	Failures  []VendorFailure
}

// Reserver is the part of the inventory ledger the splitter needs.
type Reserver interface {
	Reserve(ctx context.Context, productID, subOrderID string, qty int) (inventory.Reservation, error)
	ReleaseForSubOrder(ctx context.Context, subOrderID string) (int, error)
}

// EscrowOpener opens the escrow account of a new sub-order and voids it when
// the sub-order is rolled back before it is stored.
type EscrowOpener interface {
	Open(ctx context.Context, subOrderID string, total decimal.Decimal) (escrow.Snapshot, error)
	Void(ctx context.Context, accountID string) (escrow.Snapshot, error)
}

// Splitter partitions a cart into per-vendor sub-orders. Each vendor group is
// priced, reserved and given an escrow account independently. Sub-orders are
// stored only after their parent order.
type Splitter struct {
	catalog    orders.Catalog
	calculator *pricing.Calculator
	ledger     Reserver
	escrow     EscrowOpener
	repo       orders.Repository
	clock      kernel.Clock
	logger     *log.Logger
}

// SplitterOption configures the splitter.
type SplitterOption func(*Splitter)

// WithClock overrides the clock.
func WithClock(clock kernel.Clock) SplitterOption {
	return func(s *Splitter) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) SplitterOption {
	return func(s *Splitter) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSplitter constructs a splitter.
func NewSplitter(catalog orders.Catalog, calculator *pricing.Calculator, ledger Reserver, opener EscrowOpener, repo orders.Repository, opts ...SplitterOption) (*Splitter, error) {
	if catalog == nil {
		return nil, errors.New("order splitter: nil catalog")
	}
	if calculator == nil {
		return nil, errors.New("order splitter: nil calculator")
	}
	if ledger == nil {
		return nil, errors.New("order splitter: nil ledger")
	}
	if opener == nil {
		return nil, errors.New("order splitter: nil escrow opener")
	}
	if repo == nil {
		return nil, errors.New("order splitter: nil repository")
	}
	s := &Splitter{
		catalog:    catalog,
		calculator: calculator,
		ledger:     ledger,
		escrow:     opener,
		repo:       repo,
		clock:      kernel.SystemClock{},
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type vendorGroup struct {
	vendorID string
	items    []CartItem
	products map[string]orders.Product
}

// Split turns a cart into sub-orders. When every vendor group fails the
// returned error joins the group errors. Nothing is persisted unless a group
// got as far as storing its sub-order; if those stores all fail, the parent
// stays behind with no sub-order ids.
func (s *Splitter) Split(ctx context.Context, cart Cart) (SplitResult, error) {
	if strings.TrimSpace(cart.BuyerID) == "" {
		return SplitResult{}, orders.ErrEmptyBuyerID
	}
	if len(cart.Items) == 0 {
		return SplitResult{}, kernel.ErrEmptyCart
	}
	paymentType, err := pricing.NormalizePaymentType(string(cart.PaymentType))
	if err != nil {
		return SplitResult{}, err
	}

	groups, err := s.group(ctx, cart.Items)
	if err != nil {
		return SplitResult{}, err
	}

	order, err := orders.NewOrder(cart.BuyerID, s.clock.Now())
	if err != nil {
		return SplitResult{}, err
	}
	result := SplitResult{Order: order}
	var placed []*orders.SubOrder
	var errs []error
	fail := func(vendorID string, err error) {
		s.logger.Printf("order split: vendor group failed: order=%s vendor=%s err=%v", order.ID, vendorID, err)
		result.Failures = append(result.Failures, VendorFailure{VendorID: vendorID, Err: err})
		errs = append(errs, fmt.Errorf("vendor %s: %w", vendorID, err))
	}
	for _, group := range groups {
		sub, err := s.placeGroup(ctx, order.ID, cart.BuyerID, group, paymentType, cart.Months)
		if err != nil {
			fail(group.vendorID, err)
			continue
		}
		placed = append(placed, sub)
		order.SubOrderIDs = append(order.SubOrderIDs, sub.ID())
	}
	if len(placed) == 0 {
		return SplitResult{Failures: result.Failures}, errors.Join(errs...)
	}

	if err := s.repo.SaveOrder(ctx, order); err != nil {
		for _, sub := range placed {
			s.compensate(ctx, sub.ID(), sub.EscrowAccountID())
		}
		return SplitResult{}, fmt.Errorf("order split: save order %s: %w", order.ID, err)
	}
	for _, sub := range placed {
		if err := s.repo.SaveSubOrder(ctx, sub); err != nil {
			s.compensate(ctx, sub.ID(), sub.EscrowAccountID())
			fail(sub.VendorID(), err)
			continue
		}
		result.SubOrders = append(result.SubOrders, sub)
	}
	if len(result.SubOrders) < len(placed) {
		order.SubOrderIDs = order.SubOrderIDs[:0]
		for _, sub := range result.SubOrders {
			order.SubOrderIDs = append(order.SubOrderIDs, sub.ID())
		}
		if err := s.repo.SaveOrder(ctx, order); err != nil {
			s.logger.Printf("order split: trim order failed: order=%s err=%v", order.ID, err)
		}
		if len(result.SubOrders) == 0 {
			return SplitResult{Failures: result.Failures}, errors.Join(errs...)
		}
	}
	s.logger.Printf("order split: order=%s sub_orders=%d failures=%d", order.ID, len(result.SubOrders), len(result.Failures))
	return result, nil
}

// group buckets items by vendor in order of first appearance. Items without
// a vendor id are attributed through the catalog.
func (s *Splitter) group(ctx context.Context, items []CartItem) ([]*vendorGroup, error) {
	var groups []*vendorGroup
	index := make(map[string]*vendorGroup)
	for _, item := range items {
		var product *orders.Product
		vendorID := item.VendorID
		if vendorID == "" {
			p, err := s.catalog.GetProduct(ctx, item.ProductID)
			if err != nil {
				return nil, fmt.Errorf("order split: product %s: %w: %w", item.ProductID, kernel.ErrVendorUnavailable, err)
			}
			product = &p
			vendorID = p.VendorID
			item.VendorID = vendorID
		}
		g := index[vendorID]
		if g == nil {
			g = &vendorGroup{vendorID: vendorID, products: make(map[string]orders.Product)}
			index[vendorID] = g
			groups = append(groups, g)
		}
		if product != nil {
			g.products[item.ProductID] = *product
		}
		g.items = append(g.items, item)
	}
	return groups, nil
}

func (s *Splitter) placeGroup(ctx context.Context, parentID, buyerID string, group *vendorGroup, paymentType pricing.PaymentType, months int) (*orders.SubOrder, error) {
	lines, err := s.resolve(ctx, group)
	if err != nil {
		return nil, err
	}
	priceLines := make([]pricing.Line, 0, len(lines))
	for _, line := range lines {
		priceLines = append(priceLines, pricing.Line{ProductID: line.ProductID, Quantity: line.Quantity, UnitPrice: line.UnitPrice})
	}
	quote, err := s.calculator.Quote(priceLines, paymentType, months)
	if err != nil {
		return nil, err
	}

	subID := orders.NewSubOrderID()
	for _, line := range lines {
		if _, err := s.ledger.Reserve(ctx, line.ProductID, subID, line.Quantity); err != nil {
			s.compensate(ctx, subID, "")
			return nil, err
		}
	}

	sub, err := orders.NewSubOrder(subID, parentID, buyerID, group.vendorID, lines, quote, s.clock.Now())
	if err != nil {
		s.compensate(ctx, subID, "")
		return nil, err
	}
	account, err := s.escrow.Open(ctx, subID, quote.Total)
	if err != nil {
		s.compensate(ctx, subID, "")
		return nil, err
	}
	sub.AttachEscrow(account.ID)
	return sub, nil
}

// resolve checks every line against the catalog and snapshots its price.
func (s *Splitter) resolve(ctx context.Context, group *vendorGroup) ([]orders.LineItem, error) {
	lines := make([]orders.LineItem, 0, len(group.items))
	for _, item := range group.items {
		product, ok := group.products[item.ProductID]
		if !ok {
			p, err := s.catalog.GetProduct(ctx, item.ProductID)
			if err != nil {
				return nil, fmt.Errorf("order split: product %s: %w: %w", item.ProductID, kernel.ErrVendorUnavailable, err)
			}
			product = p
			group.products[item.ProductID] = p
		}
		if product.VendorID != group.vendorID || !product.VendorActive {
			return nil, fmt.Errorf("order split: product %s vendor %s: %w", item.ProductID, group.vendorID, kernel.ErrVendorUnavailable)
		}
		if item.Quantity > 0 && product.StockOnHand < item.Quantity {
			return nil, fmt.Errorf("order split: product %s has %d of %d: %w", item.ProductID, product.StockOnHand, item.Quantity, kernel.ErrInsufficientStock)
		}
		lines = append(lines, orders.LineItem{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: product.UnitPrice})
	}
	return lines, nil
}

// compensate undoes a vendor group that was never stored: its reservations
// are released and its escrow account, if opened, is voided.
func (s *Splitter) compensate(ctx context.Context, subID, accountID string) {
	if _, err := s.ledger.ReleaseForSubOrder(ctx, subID); err != nil {
		s.logger.Printf("order split: release reservations failed: sub_order=%s err=%v", subID, err)
	}
	if accountID == "" {
		return
	}
	if _, err := s.escrow.Void(ctx, accountID); err != nil {
		s.logger.Printf("order split: void escrow failed: sub_order=%s account=%s err=%v", subID, accountID, err)
	}
}
