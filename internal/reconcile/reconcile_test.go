package reconcile

import (
	"context"
	"errors"
	"testing"

	"tradeflow/internal/model"
)

type fakeSource struct {
	open      []model.Order
	closed    []model.Order
	openErr   error
	closedErr error

	openCalls   int
	closedCalls int
}

func (f *fakeSource) OpenOrders(ctx context.Context) ([]model.Order, error) {
	f.openCalls++
	return f.open, f.openErr
}

func (f *fakeSource) ClosedOrders(ctx context.Context) ([]model.Order, error) {
	f.closedCalls++
	return f.closed, f.closedErr
}

func TestFindOrderPrefersOpenSnapshot(t *testing.T) {
	src := &fakeSource{
		open:   []model.Order{{VenueOrderID: "A1", Status: model.StatusOpen}},
		closed: []model.Order{{VenueOrderID: "A1", Status: model.StatusCancelled}},
	}
	r := New("kraken", src)

	o, err := r.FindOrder(context.Background(), "A1", "")
	if err != nil {
		t.Fatalf("FindOrder failed: %v", err)
	}
	if o.Status != model.StatusOpen {
		t.Errorf("expected open snapshot result, got %s", o.Status)
	}
	if src.closedCalls != 0 {
		t.Errorf("closed snapshot fetched despite open match: %d calls", src.closedCalls)
	}
}

func TestFindOrderFallsBackToClosed(t *testing.T) {
	src := &fakeSource{
		open:   []model.Order{{VenueOrderID: "B1"}},
		closed: []model.Order{{VenueOrderID: "A1", Status: model.StatusFilled}},
	}
	r := New("kraken", src)

	o, err := r.FindOrder(context.Background(), "A1", "")
	if err != nil {
		t.Fatalf("FindOrder failed: %v", err)
	}
	if o.Status != model.StatusFilled {
		t.Errorf("expected filled order from closed snapshot, got %s", o.Status)
	}
	if src.openCalls != 1 || src.closedCalls != 1 {
		t.Errorf("unexpected call counts: open=%d closed=%d", src.openCalls, src.closedCalls)
	}
}

func TestFindOrderByClientOrderID(t *testing.T) {
	src := &fakeSource{
		closed: []model.Order{{VenueOrderID: "X", ClientOrderID: "my-order", Status: model.StatusCancelled}},
	}
	r := New("kraken", src)

	o, err := r.FindOrder(context.Background(), "", "my-order")
	if err != nil {
		t.Fatalf("FindOrder failed: %v", err)
	}
	if o.VenueOrderID != "X" {
		t.Errorf("unexpected order: %+v", o)
	}
}

func TestFindOrderNotFound(t *testing.T) {
	r := New("kraken", &fakeSource{})

	_, err := r.FindOrder(context.Background(), "missing", "")
	if err == nil {
		t.Fatal("expected order-not-found error")
	}
	if model.ErrorKindOf(err) != model.KindOrderNotFound {
		t.Errorf("unexpected kind: %s", model.ErrorKindOf(err))
	}
}

func TestFindOrderPropagatesSnapshotErrors(t *testing.T) {
	cause := model.NewVenueError("kraken", "open_orders", model.KindTransientNetwork, "timeout", nil)
	src := &fakeSource{openErr: cause}
	r := New("kraken", src)

	_, err := r.FindOrder(context.Background(), "A1", "")
	if !errors.Is(err, cause) {
		t.Errorf("snapshot error not propagated: %v", err)
	}
	if src.closedCalls != 0 {
		t.Error("closed snapshot fetched after open snapshot error")
	}
}
