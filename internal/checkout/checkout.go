package checkout

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pos-system/possync/internal/schema"
)

// Recorder stores a sale. *sync.SaleRepository implements it.
type Recorder interface {
	Add(ctx context.Context, s schema.Sale) (schema.Sale, error)
}

// Service checks out carts into sales.
type Service struct {
	sales  Recorder
	logger *zap.Logger
}

// NewService creates a checkout service recording sales through sales.
func NewService(sales Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{sales: sales, logger: logger.Named("checkout")}
}

// Checkout records the cart as a sale and clears it. The sale amount is the
// discounted final price. The cart is left untouched if recording fails.
func (s *Service) Checkout(ctx context.Context, cart *Cart) (schema.Sale, error) {
	if cart == nil || cart.Empty() {
		return schema.Sale{}, ErrEmptyCart
	}

	itemsJSON, err := schema.EncodeLineItems(cart.Lines())
	if err != nil {
		return schema.Sale{}, err
	}
	totals := cart.Totals()

	sale, err := s.sales.Add(ctx, schema.Sale{
		TotalAmount: totals.Final,
		PaymentType: cart.PaymentType(),
		ItemsJSON:   itemsJSON,
	})
	if err != nil {
		s.logger.Error("checkout failed", zap.Error(err))
		return schema.Sale{}, fmt.Errorf("failed to record sale: %w", err)
	}

	s.logger.Info("checkout complete",
		zap.String("id", sale.ID),
		zap.String("total", totals.Total.StringFixed(2)),
		zap.String("discount", totals.Discount.StringFixed(2)),
		zap.String("final", totals.Final.StringFixed(2)),
		zap.String("payment", sale.PaymentType))

	cart.Clear()
	return sale, nil
}
