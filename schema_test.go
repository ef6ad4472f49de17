package relq_test

import (
	"testing"

	"github.com/relqio/relq"
)

func TestSchema_NilProject(t *testing.T) {
	if _, err := relq.NewFromDBML(nil); err == nil {
		t.Error("Expected error for nil project")
	}
}

func TestSchema_UnknownTable(t *testing.T) {
	schema := createTestSchema(t)

	if _, err := schema.Table("missing"); err == nil {
		t.Error("Expected error for unknown table")
	}
	if _, err := relq.New(schema, "missing"); err == nil {
		t.Error("Expected error creating query on unknown table")
	}
}

func TestSchema_AddRelationValidation(t *testing.T) {
	schema := createTestSchema(t)

	tests := []struct {
		name  string
		table string
		rel   string
		fk    string
		to    string
		toCol string
	}{
		{"unknown owner", "missing", "r", "customer_id", "customers", "customer_id"},
		{"unknown fk column", "orders", "r", "missing", "customers", "customer_id"},
		{"unknown target", "orders", "r", "customer_id", "missing", "customer_id"},
		{"unknown target column", "orders", "r", "customer_id", "customers", "missing"},
		{"invalid name", "orders", "bad name", "customer_id", "customers", "customer_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := schema.AddRelation(tt.table, tt.rel, tt.fk, tt.to, tt.toCol, false); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestSchema_ColumnNullabilityFromDBML(t *testing.T) {
	schema := createTestSchema(t)

	orders, err := schema.Table("orders")
	if err != nil {
		t.Fatalf("Table failed: %v", err)
	}
	if !orders.Columns["coupon_id"].Nullable {
		t.Error("Expected coupon_id to be nullable")
	}
	if orders.Columns["customer_id"].Nullable {
		t.Error("Expected customer_id to be non-nullable")
	}
}

// A relation over a nullable FK column joins LEFT OUTER even when it is
// registered as non-nullable: an inner join would drop rows with a NULL FK.
func TestSchema_NullableFKForcesLeftJoin(t *testing.T) {
	schema := createTestSchema(t)
	if err := schema.AddRelation("orders", "voucher", "coupon_id", "coupons", "coupon_id", false); err != nil {
		t.Fatalf("Failed to add relation: %v", err)
	}

	q, err := relq.New(schema, "orders")
	if err != nil {
		t.Fatalf("Failed to create query: %v", err)
	}
	if err := q.AddFilter(relq.C("voucher.discount__gt", 5)); err != nil {
		t.Fatalf("AddFilter failed: %v", err)
	}

	assertCompiled(t, q, createPostgresDialect(),
		`SELECT * FROM "orders" LEFT OUTER JOIN "coupons" ON ("orders"."coupon_id" = "coupons"."coupon_id") WHERE "coupons"."discount" > $1`,
		[]any{5})
}

func TestSchema_UnknownFieldPath(t *testing.T) {
	q := createTestQuery(t, "orders")

	if err := q.AddFilter(relq.C("missing", 1)); err == nil {
		t.Error("Expected error for unknown field")
	}
	if err := q.AddFilter(relq.C("customer.missing", 1)); err == nil {
		t.Error("Expected error for unknown joined field")
	}
	if err := q.AddFields("status.name"); err == nil {
		t.Error("Expected error traversing a non-relation")
	}
}
