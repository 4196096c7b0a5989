package postgres

import (
	"context"
	stderrors "errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procurement-insight/decision/approval"
	"procurement-insight/decision/order"
)

var orderColumns = []string{"id", "supplier", "grand_total", "status", "transaction_date", "schedule_date", "items"}

func TestStore_ListOrders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows(orderColumns).
		AddRow("PO-1", "Acme", 450.5, "To Receive", "2026-01-05", "2026-01-20", []byte(`[{"item_code":"CPU","quantity":2,"rate":225.25}]`)).
		AddRow("PO-2", "", 0.0, "", "", "", []byte(`[]`))
	mock.ExpectQuery(regexp.QuoteMeta(selectOrders + " ORDER BY transaction_date, id")).WillReturnRows(rows)

	orders, err := NewStore(db).ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, "PO-1", orders[0].ID)
	assert.Equal(t, order.Amount(450.5), orders[0].GrandTotal)
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, "CPU", orders[0].Items[0].ItemCode)
	assert.Equal(t, order.Amount(225.25), orders[0].Items[0].Rate)
	assert.Equal(t, order.UnknownKey, orders[1].SupplierKey())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListOrdersEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(selectOrders)).WillReturnRows(sqlmock.NewRows(orderColumns))

	orders, err := NewStore(db).ListOrders(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
}

func TestStore_UpsertOrders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO purchase_orders")).
		WithArgs("PO-1", "Acme", 100.0, "Draft", "2026-01-01", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO purchase_orders")).
		WithArgs("PO-2", "Globex", 50.0, "To Bill", "2026-01-02", "2026-01-09", []byte(`[]`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = NewStore(db).UpsertOrders(context.Background(), []order.Order{
		{ID: "PO-1", Supplier: "Acme", GrandTotal: 100, Status: "Draft", Date: "2026-01-01",
			Items: []order.Item{{ItemCode: "CPU", Quantity: 1, Rate: 100}}},
		{ID: "PO-2", Supplier: "Globex", GrandTotal: 50, Status: "To Bill", Date: "2026-01-02", ScheduleDate: "2026-01-09"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpsertOrdersRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO purchase_orders")).
		WillReturnError(stderrors.New("deadlock detected"))
	mock.ExpectRollback()

	err = NewStore(db).UpsertOrders(context.Background(), []order.Order{{ID: "PO-1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PO-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveVerdict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	decidedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approval_verdicts")).
		WithArgs("PO-9", "DO_NOT_APPROVE", 30, sqlmock.AnyArg(), decidedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = NewStore(db).SaveVerdict(context.Background(), &approval.Verdict{
		OrderID:   "PO-9",
		Decision:  approval.DoNotApprove,
		RiskScore: 30,
	}, decidedAt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LatestVerdict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM approval_verdicts WHERE order_id = $1")).
		WithArgs("PO-9").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).
			AddRow([]byte(`{"order_id":"PO-9","decision":"REVIEW","risk_score":15}`)))

	v, err := store.LatestVerdict(ctx, "PO-9")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, approval.Review, v.Decision)
	assert.Equal(t, 15, v.RiskScore)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM approval_verdicts")).
		WithArgs("PO-1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	v, err = store.LatestVerdict(ctx, "PO-1")
	assert.NoError(t, err)
	assert.Nil(t, v)
}
