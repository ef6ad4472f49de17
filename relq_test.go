package relq_test

import (
	"testing"

	"github.com/zoobzio/dbml"

	"github.com/relqio/relq"
	"github.com/relqio/relq/mssql"
	"github.com/relqio/relq/mysql"
	"github.com/relqio/relq/postgres"
	"github.com/relqio/relq/sqlite"
)

func createPostgresDialect() *postgres.Dialect {
	return postgres.New()
}

func createMySQLDialect() *mysql.Dialect {
	return mysql.New()
}

func createSQLiteDialect() *sqlite.Dialect {
	return sqlite.New()
}

func createMSSQLDialect() *mssql.Dialect {
	return mssql.New()
}

// createTestSchema builds the shared shop schema: customers place orders,
// orders optionally carry a coupon.
func createTestSchema(t *testing.T) *relq.Schema {
	t.Helper()

	project := dbml.NewProject("shop")

	customers := dbml.NewTable("customers")
	customers.AddColumn(dbml.NewColumn("customer_id", "bigint"))
	customers.AddColumn(dbml.NewColumn("name", "varchar"))
	customers.AddColumn(dbml.NewColumn("email", "varchar"))
	customers.AddColumn(dbml.NewColumn("signup_date", "timestamp"))
	project.AddTable(customers)

	orders := dbml.NewTable("orders")
	orders.AddColumn(dbml.NewColumn("order_id", "bigint"))
	orders.AddColumn(dbml.NewColumn("customer_id", "bigint"))
	orders.AddColumn(dbml.NewColumn("coupon_id", "bigint").WithNull())
	orders.AddColumn(dbml.NewColumn("status", "varchar"))
	orders.AddColumn(dbml.NewColumn("amount", "int"))
	orders.AddColumn(dbml.NewColumn("order_date", "timestamp"))
	project.AddTable(orders)

	coupons := dbml.NewTable("coupons")
	coupons.AddColumn(dbml.NewColumn("coupon_id", "bigint"))
	coupons.AddColumn(dbml.NewColumn("code", "varchar"))
	coupons.AddColumn(dbml.NewColumn("discount", "int"))
	project.AddTable(coupons)

	schema, err := relq.NewFromDBML(project)
	if err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	if err := schema.AddRelation("orders", "customer", "customer_id", "customers", "customer_id", false); err != nil {
		t.Fatalf("Failed to add relation: %v", err)
	}
	if err := schema.AddRelation("orders", "coupon", "coupon_id", "coupons", "coupon_id", true); err != nil {
		t.Fatalf("Failed to add relation: %v", err)
	}
	if err := schema.AddRelation("customers", "orders", "customer_id", "orders", "customer_id", true); err != nil {
		t.Fatalf("Failed to add relation: %v", err)
	}
	return schema
}

func createTestQuery(t *testing.T, table string) *relq.Query {
	t.Helper()

	q, err := relq.New(createTestSchema(t), table)
	if err != nil {
		t.Fatalf("Failed to create query: %v", err)
	}
	return q
}

func assertCompiled(t *testing.T, q *relq.Query, d relq.Dialect, wantSQL string, wantParams []any) {
	t.Helper()

	result, err := relq.Compile(q, d)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if result.SQL != wantSQL {
		t.Errorf("Expected SQL:\n%s\nGot:\n%s", wantSQL, result.SQL)
	}
	assertParams(t, result.Params, wantParams)
}

func assertParams(t *testing.T, got, want []any) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("Expected %d params, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Param %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}
