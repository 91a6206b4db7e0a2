package inbox

import (
	"context"
	"testing"
)

func TestMemoryDeduplicates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, err := m.Record(ctx, "e1", "payments.deposit.paid.v1")
	if err != nil || !ok {
		t.Fatalf("first record: ok=%v err=%v", ok, err)
	}
	ok, _ = m.Record(ctx, "e1", "payments.deposit.paid.v1")
	if ok {
		t.Fatal("expected duplicate to be rejected")
	}
	if err := m.Forget(ctx, "e1"); err != nil {
		t.Fatal(err)
	}
	ok, _ = m.Record(ctx, "e1", "payments.deposit.paid.v1")
	if !ok {
		t.Fatal("expected forgotten event to be accepted again")
	}
}
