package repository_test

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"golang.org/x/text/currency"

	"github.com/grennMind/herbal-orders/internal/domain"
)

func startPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := postgres.Run(ctx, "postgres:17-alpine",
		postgres.WithInitScripts(filepath.Join("..", "..", "migrations", "001_init.sql")),
		postgres.WithDatabase("herbal"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", fmt.Errorf("postgres.Run: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return container, "", fmt.Errorf("container.ConnectionString: %w", err)
	}

	return container, connStr, nil
}

func insertProduct(ctx context.Context, pool *pgxpool.Pool, p domain.Product) error {
	_, err := pool.Exec(ctx,
		`INSERT INTO products (id, seller_id, name, sku, image_url, price_amount, price_currency, stock, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.SellerID, p.Name, p.SKU, lo.ToPtr(p.ImageURL),
		p.Price.Amount, p.Price.Currency.String(), p.Stock, p.Active)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}

	return nil
}

func randomProduct(stock int) domain.Product {
	return domain.Product{
		ID:       uuid.MustParse(gofakeit.UUID()),
		SellerID: gofakeit.UUID(),
		Name:     gofakeit.ProductName(),
		SKU:      gofakeit.LetterN(10),
		ImageURL: gofakeit.URL(),
		Price: domain.Money{
			Amount:   decimal.NewFromFloat(gofakeit.Price(1, 100)),
			Currency: currency.USD,
		},
		Stock:  stock,
		Active: true,
	}
}

func randomCurrency() currency.Unit {
	var (
		result currency.Unit
		err    error
	)

	for {
		// CurrencyShort occasionally produces codes ParseISO rejects
		result, err = currency.ParseISO(gofakeit.CurrencyShort())
		if err == nil {
			break
		}
	}

	return result
}
