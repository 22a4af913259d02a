package inventorydb

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"freightline/internal/inventory"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	}

	return db, mock, cleanup
}

func TestStore_InitSchema(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS inventory_records").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	store := NewStore(db)
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
}

func TestStore_Get(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT product_id, quantity_available").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity_available"}).
			AddRow(int64(1), 5))
	mock.ExpectClose()

	store := NewStore(db)
	rec, err := store.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.QuantityAvailable != 5 {
		t.Fatalf("unexpected quantity %d", rec.QuantityAvailable)
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT product_id, quantity_available").
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectClose()

	store := NewStore(db)
	_, err := store.Get(context.Background(), 9)
	if !errors.Is(err, inventory.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestStore_Reserve_LocksRowsAndDecrements(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT quantity_available").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity_available"}).AddRow(5))
	mock.ExpectQuery("SELECT quantity_available").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity_available"}).AddRow(10))
	mock.ExpectExec("UPDATE inventory_records").
		WithArgs(int64(1), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE inventory_records").
		WithArgs(int64(2), 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectClose()

	store := NewStore(db)
	short, err := store.Reserve(context.Background(), []inventory.ItemRequest{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 5},
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(short) != 0 {
		t.Fatalf("expected full reservation, got shortfalls %+v", short)
	}
}

func TestStore_Reserve_ShortfallRollsBack(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT quantity_available").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity_available"}).AddRow(1))
	mock.ExpectRollback()
	mock.ExpectClose()

	store := NewStore(db)
	short, err := store.Reserve(context.Background(), []inventory.ItemRequest{
		{ProductID: 1, Quantity: 3},
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(short) != 1 || short[0].Available != 1 || short[0].Requested != 3 {
		t.Fatalf("unexpected shortfalls %+v", short)
	}
}

func TestStore_Reserve_UnknownProductRollsBack(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT quantity_available").
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()
	mock.ExpectClose()

	store := NewStore(db)
	short, err := store.Reserve(context.Background(), []inventory.ItemRequest{
		{ProductID: 9, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(short) != 1 || !short[0].Missing {
		t.Fatalf("expected a missing-product shortfall, got %+v", short)
	}
}

func TestStore_Save_Upserts(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("INSERT INTO inventory_records").
		WithArgs(int64(1), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	store := NewStore(db)
	if err := store.Save(context.Background(), inventory.Record{ProductID: 1, QuantityAvailable: 3}); err != nil {
		t.Fatalf("Save: %v", err)
	}
}
