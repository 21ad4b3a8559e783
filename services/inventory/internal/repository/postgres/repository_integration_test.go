//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/shestoi/storefront/services/inventory/internal/repository"
	"github.com/shestoi/storefront/services/inventory/internal/repository/ledgertest"
	"github.com/shestoi/storefront/services/inventory/migrations"
)

func TestRepository_Integration(t *testing.T) {
	ctx := context.Background()

	// Поднимаем PostgreSQL контейнер через testcontainers
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("inventory"),
		postgres.WithUsername("inventory_user"),
		postgres.WithPassword("inventory_password"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, migrations.Up(ctx, dsn), "Failed to run migrations")

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := NewRepository(pool)

	ledgertest.Run(t, func(t *testing.T, products []repository.Product) repository.StockLedger {
		_, err := pool.Exec(ctx, `TRUNCATE stock, products, ledger_reservations`)
		require.NoError(t, err)
		for _, p := range products {
			require.NoError(t, repo.UpsertProduct(ctx, p))
		}
		return repo
	})
}
