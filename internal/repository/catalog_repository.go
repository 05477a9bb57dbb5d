package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/grennMind/herbal-orders/internal/domain"
	"github.com/grennMind/herbal-orders/internal/port"
)

type catalogRepository struct {
	db DB
}

func NewCatalog(db DB) port.CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) GetProduct(ctx context.Context, productID uuid.UUID) (domain.Product, error) {
	var p domain.Product

	if productID == uuid.Nil {
		return p, fmt.Errorf("productID is empty")
	}

	var (
		priceAmount   decimal.Decimal
		priceCurrency string
		imageURL      *string
	)

	err := r.db.QueryRow(ctx,
		`SELECT id, seller_id, name, sku, image_url, price_amount, price_currency, stock, active
		 FROM products WHERE id = $1`,
		productID).Scan(&p.ID, &p.SellerID, &p.Name, &p.SKU, &imageURL, &priceAmount, &priceCurrency, &p.Stock, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, ErrProductNotFound
		}
		return p, fmt.Errorf("select product: %w", err)
	}

	parsedCurrency, err := currency.ParseISO(priceCurrency)
	if err != nil {
		return p, fmt.Errorf("currency[%s] is not valid: %w", priceCurrency, err)
	}

	p.ImageURL = lo.FromPtr(imageURL)
	p.Price = domain.Money{Amount: priceAmount, Currency: parsedCurrency}

	return p, nil
}
