package integration

import (
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/relqio/relq"
	"github.com/relqio/relq/sqlite"
)

func newSQLiteDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open SQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	db.MustExec(`
		CREATE TABLE customers (
			customer_id INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)
	`)
	db.MustExec(`
		CREATE TABLE coupons (
			coupon_id INTEGER PRIMARY KEY,
			code TEXT NOT NULL,
			discount INTEGER NOT NULL
		)
	`)
	db.MustExec(`
		CREATE TABLE orders (
			order_id INTEGER PRIMARY KEY,
			customer_id INTEGER NOT NULL REFERENCES customers(customer_id),
			coupon_id INTEGER REFERENCES coupons(coupon_id),
			status TEXT NOT NULL,
			amount INTEGER NOT NULL
		)
	`)
	return db
}

// seedShop loads the canonical fixture: alice has two paid orders (30, 20),
// bob one pending order (50), carol none.
func seedShop(t *testing.T, db *sqlx.DB) {
	t.Helper()

	db.MustExec(`INSERT INTO customers (customer_id, name) VALUES (1, 'alice'), (2, 'bob'), (3, 'carol')`)
	db.MustExec(`INSERT INTO coupons (coupon_id, code, discount) VALUES (10, 'TEN', 10)`)
	db.MustExec(`
		INSERT INTO orders (order_id, customer_id, coupon_id, status, amount) VALUES
			(100, 1, 10, 'PAID', 30),
			(101, 1, NULL, 'PAID', 20),
			(102, 2, NULL, 'PENDING', 50)
	`)
}

// Customers with no matching orders still produce a row; the conditional
// sum contributes NULL for them instead of dropping them.
func TestSQLite_ConditionalSumKeepsUnmatchedRows(t *testing.T) {
	db := newSQLiteDB(t)
	seedShop(t, db)

	schema := createShopSchema(t)
	q, err := relq.New(schema, "customers")
	if err != nil {
		t.Fatalf("Failed to create query: %v", err)
	}
	if err := q.AddFields("customer_id"); err != nil {
		t.Fatalf("AddFields failed: %v", err)
	}
	agg := relq.Sum("orders.amount").Only(relq.C("orders.status", "PAID"))
	if err := q.AddAggregate(agg, "paid_total", false); err != nil {
		t.Fatalf("AddAggregate failed: %v", err)
	}
	if err := q.AddOrderBy("customer_id", relq.ASC); err != nil {
		t.Fatalf("AddOrderBy failed: %v", err)
	}

	result, err := relq.Compile(q, sqlite.New())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	type row struct {
		CustomerID int64  `db:"customer_id"`
		PaidTotal  *int64 `db:"paid_total"`
	}
	var rows []row
	if err := db.Select(&rows, result.SQL, result.Params...); err != nil {
		t.Fatalf("Query failed: %v\nSQL: %s", err, result.SQL)
	}

	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	if rows[0].PaidTotal == nil || *rows[0].PaidTotal != 50 {
		t.Errorf("Expected alice paid_total 50, got %v", rows[0].PaidTotal)
	}
	if rows[1].PaidTotal != nil {
		t.Errorf("Expected bob paid_total NULL, got %d", *rows[1].PaidTotal)
	}
	if rows[2].PaidTotal != nil {
		t.Errorf("Expected carol paid_total NULL, got %d", *rows[2].PaidTotal)
	}
}

func TestSQLite_ConditionalCountPerCustomer(t *testing.T) {
	db := newSQLiteDB(t)
	seedShop(t, db)

	schema := createShopSchema(t)
	q, err := relq.New(schema, "customers")
	if err != nil {
		t.Fatalf("Failed to create query: %v", err)
	}
	if err := q.AddFields("customer_id"); err != nil {
		t.Fatalf("AddFields failed: %v", err)
	}
	agg := relq.Count("orders.order_id").Only(relq.C("orders.status", "PAID"))
	if err := q.AddAggregate(agg, "paid_count", false); err != nil {
		t.Fatalf("AddAggregate failed: %v", err)
	}
	if err := q.AddOrderBy("customer_id", relq.ASC); err != nil {
		t.Fatalf("AddOrderBy failed: %v", err)
	}

	result, err := relq.Compile(q, sqlite.New())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	var counts []int64
	rows, err := db.Queryx(result.SQL, result.Params...)
	if err != nil {
		t.Fatalf("Query failed: %v\nSQL: %s", err, result.SQL)
	}
	defer rows.Close()
	for rows.Next() {
		var id, count int64
		if err := rows.Scan(&id, &count); err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("Rows failed: %v", err)
	}

	// COUNT over the CASE expression counts only paid orders and yields
	// zero, not NULL, for unmatched customers.
	want := []int64{2, 0, 0}
	if len(counts) != len(want) {
		t.Fatalf("Expected %d rows, got %d", len(want), len(counts))
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("Row %d: expected count %d, got %d", i, want[i], counts[i])
		}
	}
}

func TestSQLite_SummaryOverAnnotation(t *testing.T) {
	db := newSQLiteDB(t)
	seedShop(t, db)

	schema := createShopSchema(t)
	q, err := relq.New(schema, "customers")
	if err != nil {
		t.Fatalf("Failed to create query: %v", err)
	}
	if err := q.AddFields("customer_id"); err != nil {
		t.Fatalf("AddFields failed: %v", err)
	}
	agg := relq.Count("orders.order_id").Only(relq.C("orders.status", "PAID"))
	if err := q.AddAggregate(agg, "paid_count", false); err != nil {
		t.Fatalf("AddAggregate failed: %v", err)
	}
	if err := q.AddAggregate(relq.Sum("paid_count"), "total_paid", true); err != nil {
		t.Fatalf("AddAggregate failed: %v", err)
	}

	result, err := relq.Compile(q, sqlite.New())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	var total int64
	if err := db.Get(&total, result.SQL, result.Params...); err != nil {
		t.Fatalf("Query failed: %v\nSQL: %s", err, result.SQL)
	}
	if total != 2 {
		t.Errorf("Expected 2 paid orders in total, got %d", total)
	}
}

func TestSQLite_HavingOnConditionalAggregate(t *testing.T) {
	db := newSQLiteDB(t)
	seedShop(t, db)

	schema := createShopSchema(t)
	q, err := relq.New(schema, "customers")
	if err != nil {
		t.Fatalf("Failed to create query: %v", err)
	}
	if err := q.AddFields("customer_id"); err != nil {
		t.Fatalf("AddFields failed: %v", err)
	}
	agg := relq.Count("orders.order_id").Only(relq.C("orders.status", "PAID"))
	if err := q.AddAggregate(agg, "paid_count", false); err != nil {
		t.Fatalf("AddAggregate failed: %v", err)
	}
	if err := q.AddFilter(relq.C("paid_count__gte", 1)); err != nil {
		t.Fatalf("AddFilter failed: %v", err)
	}

	result, err := relq.Compile(q, sqlite.New())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	type row struct {
		CustomerID int64 `db:"customer_id"`
		PaidCount  int64 `db:"paid_count"`
	}
	var rows []row
	if err := db.Select(&rows, result.SQL, result.Params...); err != nil {
		t.Fatalf("Query failed: %v\nSQL: %s", err, result.SQL)
	}
	if len(rows) != 1 || rows[0].CustomerID != 1 {
		t.Errorf("Expected only alice to pass HAVING, got %v", rows)
	}
	if len(rows) == 1 && rows[0].PaidCount != 2 {
		t.Errorf("Expected alice paid_count 2, got %d", rows[0].PaidCount)
	}
}
