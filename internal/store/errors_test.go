package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyConnectionErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"nil", nil, false},
		{"connection failure class", &pgconn.PgError{Code: "08006"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"cannot connect now", &pgconn.PgError{Code: "57P03"}, true},
		{"constraint violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if IsUnavailable(got) != tt.unavailable {
				t.Errorf("IsUnavailable(classify(%v)) = %v, want %v", tt.err, !tt.unavailable, tt.unavailable)
			}
			if tt.err != nil && !tt.unavailable && !errors.Is(got, tt.err) {
				t.Errorf("classify changed a non-connection error: %v", got)
			}
		})
	}
}

func TestUnavailableErrorWrapping(t *testing.T) {
	base := &pgconn.PgError{Code: "08001"}
	err := fmt.Errorf("enqueue job: %w", classify(base))

	if !IsUnavailable(err) {
		t.Error("IsUnavailable lost through fmt.Errorf wrapping")
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Error("underlying pg error not reachable through UnavailableError")
	}
}
