package sqlite

import (
	"testing"
	"time"

	"github.com/relqio/relq"
)

func TestPlaceholder(t *testing.T) {
	d := New()
	if got := d.Placeholder(7); got != "?" {
		t.Errorf("Expected ?, got %s", got)
	}
}

func TestLikeEscape(t *testing.T) {
	d := New()
	if got := d.LikeEscape(); got != ` ESCAPE '\'` {
		t.Errorf("Unexpected escape clause: %q", got)
	}
	if got := d.LookupCast(relq.LookupContains, "?"); got != "?" {
		t.Errorf("Expected bare placeholder, got %s", got)
	}
}

func TestDateArith(t *testing.T) {
	d := New()
	if got := d.DateArithSQL("x", "?", false); got != "DATETIME(x, ?)" {
		t.Errorf("Unexpected date SQL: %s", got)
	}
	if got := d.DateArithParam(90*time.Second, false); got != "+90 seconds" {
		t.Errorf("Unexpected modifier: %v", got)
	}
	if got := d.DateArithParam(time.Hour, true); got != "-3600 seconds" {
		t.Errorf("Unexpected negative modifier: %v", got)
	}
}

func TestLimitOffset(t *testing.T) {
	d := New()
	offset := 5
	sql, err := d.LimitOffsetSQL(nil, &offset, false)
	if err != nil {
		t.Fatalf("LimitOffsetSQL failed: %v", err)
	}
	if sql != " LIMIT -1 OFFSET 5" {
		t.Errorf("Unexpected pagination SQL: %q", sql)
	}
}
