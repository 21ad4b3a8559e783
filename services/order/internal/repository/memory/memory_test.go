package memory

import (
	"testing"

	"github.com/shestoi/storefront/services/order/internal/repository/storetest"
)

func TestMemoryRepository(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		return NewMemoryRepository()
	})
}
