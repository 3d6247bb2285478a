package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsTransient_ConnectivityErrors(t *testing.T) {
	cases := []error{
		io.EOF,
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		fmt.Errorf("dial tcp: connection refused"),
		&pgconn.PgError{Code: "08006"}, // connection_failure
		&pgconn.PgError{Code: "57P01"}, // admin_shutdown
		&pgconn.PgError{Code: "53300"}, // too_many_connections
		&pgconn.PgError{Code: "40001"}, // serialization_failure
	}
	for _, err := range cases {
		if !IsTransient(err) {
			t.Errorf("expected %v to be transient", err)
		}
	}
}

func TestIsTransient_QueryErrorsPropagate(t *testing.T) {
	cases := []error{
		nil,
		&pgconn.PgError{Code: "42601"}, // syntax_error
		&pgconn.PgError{Code: "42P01"}, // undefined_table
		&pgconn.PgError{Code: "23505"}, // unique_violation
		context.Canceled,
		context.DeadlineExceeded,
		errors.New("some application error"),
	}
	for _, err := range cases {
		if IsTransient(err) {
			t.Errorf("expected %v to be non-transient", err)
		}
	}
}

func TestIsTransient_WrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("query orders: %w", &pgconn.PgError{Code: "08001"})
	if !IsTransient(wrapped) {
		t.Fatalf("expected wrapped connection error to be transient")
	}
	wrappedQuery := fmt.Errorf("query orders: %w", &pgconn.PgError{Code: "42601"})
	if IsTransient(wrappedQuery) {
		t.Fatalf("expected wrapped syntax error to be non-transient")
	}
}
