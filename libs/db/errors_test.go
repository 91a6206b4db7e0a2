package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorClassifiers(t *testing.T) {
	exclusion := fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeExclusionViolation})
	if !IsExclusionViolation(exclusion) {
		t.Fatal("expected wrapped exclusion violation to be detected")
	}
	if IsUniqueViolation(exclusion) {
		t.Fatal("exclusion violation is not a unique violation")
	}
	if IsTransient(exclusion) {
		t.Fatal("exclusion violation must not be transient")
	}
	if !IsTransient(&pgconn.PgError{Code: CodeLockNotAvailable}) {
		t.Fatal("lock timeout should be transient")
	}
	if !IsTransient(fmt.Errorf("commit: %w", context.DeadlineExceeded)) {
		t.Fatal("deadline should be transient")
	}
	if !IsNotFound(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Fatal("expected not found")
	}
	if IsTransient(errors.New("boom")) {
		t.Fatal("plain errors are not transient")
	}
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "appointments_idempotency_key"})
	if got := ConstraintName(unique); got != "appointments_idempotency_key" {
		t.Fatalf("unexpected constraint %q", got)
	}
}
