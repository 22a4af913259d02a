package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Record is one stored ledger row. OrderID is negative when the order
// failed before intake assigned a real id.
type Record struct {
	ID         int64
	OrderID    int64
	CustomerID string
	StatusCode int
	CreatedAt  time.Time
}

// Response is the REST view of a record, with the code resolved to its name.
type Response struct {
	ID         int64     `json:"id"`
	OrderID    int64     `json:"orderId"`
	CustomerID string    `json:"customerId"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ErrEmptyLedger is returned by MinOrderID when no records exist.
var ErrEmptyLedger = errors.New("status ledger is empty")

// RecordStore persists ledger rows. Rows are append-only: no
// implementation may update or delete them.
type RecordStore interface {
	// Append stores the record and assigns its row id.
	Append(ctx context.Context, rec Record) (Record, error)
	ListAll(ctx context.Context) ([]Record, error)
	// MinOrderID returns the smallest order id over all records, or
	// ErrEmptyLedger when none exist. Used to re-derive the negative-id
	// floor after a restart.
	MinOrderID(ctx context.Context) (int64, error)
}

// Ledger appends status records and owns the negative-id sequence. The
// sequence is derived lazily from the store's minimum order id so that a
// restart never re-issues an id already on disk.
type Ledger struct {
	store  RecordStore
	logger *zap.Logger

	mu      sync.Mutex
	seq     int64
	seqInit bool
}

// NewLedger constructs a status ledger.
func NewLedger(store RecordStore, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, logger: logger}
}

// Record appends one ledger row. A zero orderID means the order never
// received a real id; a fresh negative id is allocated for it and returned
// on the stored record.
func (l *Ledger) Record(ctx context.Context, orderID int64, customerID string, st Status, at time.Time) (Record, error) {
	if orderID == 0 {
		var err error
		orderID, err = l.nextNegativeID(ctx)
		if err != nil {
			return Record{}, err
		}
	}

	rec, err := l.store.Append(ctx, Record{
		OrderID:    orderID,
		CustomerID: customerID,
		StatusCode: st.Code(),
		CreatedAt:  at,
	})
	if err != nil {
		return Record{}, fmt.Errorf("append status record: %w", err)
	}
	l.logger.Info("status recorded",
		zap.Int64("order_id", rec.OrderID),
		zap.String("status", string(st)),
	)
	return rec, nil
}

// nextNegativeID issues the next synthetic id. The floor is derived once
// per process from the persisted minimum; ids strictly decrease and are
// never reused.
func (l *Ledger) nextNegativeID(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.seqInit {
		min, err := l.store.MinOrderID(ctx)
		switch {
		case errors.Is(err, ErrEmptyLedger):
			min = 0
		case err != nil:
			return 0, fmt.Errorf("derive negative id floor: %w", err)
		}
		if min > 0 {
			min = 0
		}
		l.seq = min
		l.seqInit = true
	}

	l.seq--
	return l.seq, nil
}

// ListAll returns the full status history with codes resolved to names.
func (l *Ledger) ListAll(ctx context.Context) ([]Response, error) {
	records, err := l.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list status records: %w", err)
	}
	out := make([]Response, len(records))
	for i, rec := range records {
		out[i] = Response{
			ID:         rec.ID,
			OrderID:    rec.OrderID,
			CustomerID: rec.CustomerID,
			Status:     string(FromCode(rec.StatusCode)),
			CreatedAt:  rec.CreatedAt,
		}
	}
	return out, nil
}

// NewMemoryStore constructs an in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// MemoryStore keeps records in memory in append order.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	records []Record
}

func (s *MemoryStore) Append(ctx context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *MemoryStore) ListAll(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *MemoryStore) MinOrderID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return 0, ErrEmptyLedger
	}
	min := s.records[0].OrderID
	for _, rec := range s.records[1:] {
		if rec.OrderID < min {
			min = rec.OrderID
		}
	}
	return min, nil
}
