package db

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrPoolTimeout reports that no pool slot freed up within the deadline.
var ErrPoolTimeout = errors.New("connection pool acquisition timed out")

// Retryable SQLSTATE classes: 08 connection exception, 53 insufficient
// resources, 57 operator intervention. 40001/40P01 are retryable by
// definition; everything else (syntax, constraint, data errors) is the
// caller's bug and must propagate on the first attempt.
func transientSQLState(code string) bool {
	if code == "40001" || code == "40P01" {
		return true
	}
	if len(code) < 2 {
		return false
	}
	switch code[:2] {
	case "08", "53", "57":
		return true
	}
	return false
}

// IsTransient classifies an error as a connectivity failure worth retrying.
// Context cancellation is never transient; the caller asked to stop.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientSQLState(pgErr.Code)
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Driver layers sometimes flatten the cause into the message.
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"bad connection",
		"server closed the connection",
		"unexpected eof",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
