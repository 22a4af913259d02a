package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Service performs atomic inventory checks and reservations. Atomicity
// lives in the store: the in-memory store holds its mutex across the whole
// reservation and the Postgres store locks the rows in one transaction, so
// two service instances sharing a database cannot both pass the check and
// overdraw stock.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService constructs a Service over the given store.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// CheckAndReserve verifies that every requested item is fully available and,
// when req.Reserve is set, decrements all quantities. The call is all or
// nothing: any shortfall leaves every record untouched.
func (s *Service) CheckAndReserve(ctx context.Context, req CheckRequest) (CheckResponse, error) {
	items := aggregateItems(req.Items)

	if !req.Reserve {
		return s.check(ctx, items)
	}

	short, err := s.store.Reserve(ctx, items)
	if err != nil {
		return CheckResponse{}, fmt.Errorf("reserve inventory: %w", err)
	}
	if len(short) > 0 {
		detail := shortfallDetail(short)
		s.logger.Warn("inventory reservation failed", zap.Strings("unavailable", detail))
		return CheckResponse{Available: false, UnavailableItems: detail}, nil
	}

	for _, item := range items {
		s.logger.Info("reserved inventory",
			zap.Int64("product_id", item.ProductID),
			zap.Int("quantity", item.Quantity),
		)
	}
	return CheckResponse{Available: true}, nil
}

// check is the read-only path: an advisory snapshot, no locks held.
func (s *Service) check(ctx context.Context, items []ItemRequest) (CheckResponse, error) {
	var short []Shortfall
	for _, item := range items {
		rec, err := s.store.Get(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, ErrProductNotFound) {
				short = append(short, Shortfall{ProductID: item.ProductID, Requested: item.Quantity, Missing: true})
				continue
			}
			return CheckResponse{}, err
		}
		if rec.QuantityAvailable < item.Quantity {
			short = append(short, Shortfall{
				ProductID: item.ProductID,
				Available: rec.QuantityAvailable,
				Requested: item.Quantity,
			})
		}
	}

	if len(short) > 0 {
		detail := shortfallDetail(short)
		s.logger.Warn("inventory check failed", zap.Strings("unavailable", detail))
		return CheckResponse{Available: false, UnavailableItems: detail}, nil
	}
	return CheckResponse{Available: true}, nil
}

// aggregateItems merges repeated lines for one product, so they cannot pass
// individually yet overdraw combined, and orders the result by ascending
// product id: row locks are then always taken in the same order and
// concurrent reservations cannot deadlock.
func aggregateItems(items []ItemRequest) []ItemRequest {
	wanted := make(map[int64]int, len(items))
	for _, item := range items {
		wanted[item.ProductID] += item.Quantity
	}

	out := make([]ItemRequest, 0, len(wanted))
	for productID, quantity := range wanted {
		out = append(out, ItemRequest{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func shortfallDetail(short []Shortfall) []string {
	detail := make([]string, len(short))
	for i, sf := range short {
		if sf.Missing {
			detail[i] = fmt.Sprintf("product %d not found", sf.ProductID)
			continue
		}
		detail[i] = fmt.Sprintf(
			"product %d has insufficient quantity (available: %d, requested: %d)",
			sf.ProductID, sf.Available, sf.Requested,
		)
	}
	return detail
}
