package worker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestNonRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"fk violation", &pgconn.PgError{Code: "23503"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"invalid text representation", &pgconn.PgError{Code: "22P02"}, true},
		{"wrapped fk violation", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"}), true},
		{"connection failure", &pgconn.PgError{Code: "08006"}, false},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, false},
		{"plain error", errors.New("dial tcp: connection refused"), false},
		{"nil", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := nonRetryable(tc.err); got != tc.want {
				t.Errorf("nonRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
