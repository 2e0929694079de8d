package reconcile

import (
	"context"

	"tradeflow/internal/model"
	"tradeflow/logger"
)

// Source provides the two order snapshots a venue exposes. Implementations
// are the venue adapters themselves.
type Source interface {
	OpenOrders(ctx context.Context) ([]model.Order, error)
	ClosedOrders(ctx context.Context) ([]model.Order, error)
}

// Reconciler resolves an order's current state from venue snapshots for
// venues without a direct order lookup endpoint.
type Reconciler struct {
	venue string
	src   Source
	log   *logger.Entry
}

func New(venue string, src Source) *Reconciler {
	return &Reconciler{
		venue: venue,
		src:   src,
		log:   logger.GetLogger().WithVenue(venue).WithComponent("reconcile"),
	}
}

// FindOrder looks for the order in the open snapshot first, then in the
// closed one. Open is queried first because a working order is the common
// case and the open snapshot is the smaller of the two. When neither snapshot
// contains the order the result is an order-not-found error; callers decide
// whether that means the order was never accepted or has aged out of the
// venue's history window.
func (r *Reconciler) FindOrder(ctx context.Context, venueOrderID, clientOrderID string) (*model.Order, error) {
	open, err := r.src.OpenOrders(ctx)
	if err != nil {
		return nil, err
	}
	if o := match(open, venueOrderID, clientOrderID); o != nil {
		return o, nil
	}

	closed, err := r.src.ClosedOrders(ctx)
	if err != nil {
		return nil, err
	}
	if o := match(closed, venueOrderID, clientOrderID); o != nil {
		return o, nil
	}

	r.log.WithFields(logger.Fields{
		"venue_order_id":  venueOrderID,
		"client_order_id": clientOrderID,
	}).Warn("order missing from both snapshots")
	return nil, model.NewVenueError(r.venue, "get_order", model.KindOrderNotFound, "order not present in open or closed snapshots", nil)
}

func match(orders []model.Order, venueOrderID, clientOrderID string) *model.Order {
	for i := range orders {
		o := &orders[i]
		if venueOrderID != "" && o.VenueOrderID == venueOrderID {
			return o
		}
		if clientOrderID != "" && o.ClientOrderID == clientOrderID {
			return o
		}
	}
	return nil
}
