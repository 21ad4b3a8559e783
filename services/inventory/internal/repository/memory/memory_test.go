package memory

import (
	"testing"

	"github.com/shestoi/storefront/services/inventory/internal/repository"
	"github.com/shestoi/storefront/services/inventory/internal/repository/ledgertest"
)

func TestRepository(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T, products []repository.Product) repository.StockLedger {
		return NewRepository(products)
	})
}
