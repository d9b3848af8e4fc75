package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/syncbridge/internal/store/postgres"
	"github.com/agentstation/syncbridge/pkg/constants"
	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/mapping"
	"github.com/agentstation/syncbridge/pkg/mapping/mappingtest"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "lock timeout", err: &pgconn.PgError{Code: "55P03"}, want: true},
		{name: "wrapped", err: fmt.Errorf("save: %w", &pgconn.PgError{Code: "40001"}), want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}},
		{name: "plain error", err: errors.New("boom")},
		{name: "nil", err: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, postgres.IsRetryable(tt.err))
		})
	}
}

func TestNewRejectsBadDSN(t *testing.T) {
	_, err := postgres.New(context.Background(), "postgres://%zz")
	require.Error(t, err)
	var configErr *errors.ConfigError
	assert.True(t, errors.As(err, &configErr))
}

// TestStore runs the store suite against SYNCBRIDGE_TEST_POSTGRES_DSN.
func TestStore(t *testing.T) {
	dsn := os.Getenv("SYNCBRIDGE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SYNCBRIDGE_TEST_POSTGRES_DSN not set")
	}

	mappingtest.Run(t, func(t *testing.T) mapping.Store {
		ctx := context.Background()
		s, err := postgres.New(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })

		// Each subtest starts from an empty table.
		admin, err := pgconn.Connect(ctx, dsn)
		require.NoError(t, err)
		defer admin.Close(ctx)
		_, err = admin.Exec(ctx, "TRUNCATE "+constants.MappingsTable).ReadAll()
		require.NoError(t, err)
		return s
	})
}
