package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/marketguard/internal/config"
	"github.com/BradenHooton/marketguard/internal/models"
)

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", pgx.ErrNoRows, models.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, models.ErrConflict},
		{"not null", &pgconn.PgError{Code: "23502"}, models.ErrBadRequest},
		{"statement timeout", &pgconn.PgError{Code: "57014"}, models.ErrStoreUnavailable},
		{"deadline", context.DeadlineExceeded, models.ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapPostgresError(tt.err)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.True(t, errors.Is(got, tt.want), "got %v", got)
		})
	}
}

func TestRuntimeParams(t *testing.T) {
	params := runtimeParams(&config.DatabaseConfig{StatementTimeout: 1500 * time.Millisecond})
	assert.Equal(t, "marketguard", params["application_name"])
	assert.Equal(t, "1500", params["statement_timeout"])

	params = runtimeParams(&config.DatabaseConfig{})
	assert.NotContains(t, params, "statement_timeout")
}
