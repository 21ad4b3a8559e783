package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/shestoi/storefront/services/inventory/internal/repository"
)

type seedProduct struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Sizes []struct {
		SizeID   int64 `json:"size_id"`
		Quantity int64 `json:"quantity"`
	} `json:"sizes"`
}

// productUpserter реализуют postgres и mongo репозитории
type productUpserter interface {
	UpsertProduct(ctx context.Context, p repository.Product) error
}

// loadSeed читает JSON каталог; пустой path означает "без засева"
func loadSeed(path string) ([]repository.Product, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var docs []seedProduct
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	products := make([]repository.Product, 0, len(docs))
	for _, d := range docs {
		if d.ID <= 0 || d.Price.IsNegative() {
			return nil, fmt.Errorf("seed product %d: id must be positive and price non-negative", d.ID)
		}
		p := repository.Product{ID: d.ID, Name: d.Name, Price: d.Price}
		for _, s := range d.Sizes {
			if s.SizeID <= 0 || s.Quantity < 0 {
				return nil, fmt.Errorf("seed product %d: invalid size %d", d.ID, s.SizeID)
			}
			p.Sizes = append(p.Sizes, repository.ProductSize{SizeID: s.SizeID, Quantity: s.Quantity})
		}
		products = append(products, p)
	}
	return products, nil
}

func applySeed(ctx context.Context, repo productUpserter, products []repository.Product) error {
	for _, p := range products {
		if err := repo.UpsertProduct(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
