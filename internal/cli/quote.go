package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/config"
	ppostgres "github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/postgres"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/pricing"
	pgrepo "github.com/VSydorenko/simplyCMS-core-sub001/internal/repositories/postgres"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/services"
)

// QuoteCommand creates the quote command.
func QuoteCommand(opts Options) *cobra.Command {
	var (
		product      string
		modification string
		user         string
		tier         string
		section      string
		quantity     int
		cartTotal    string
		dsn          string
		format       string
		locale       string
		currencyCode string
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a product against the live price and discount tables",
		Long: `Quote loads prices, the requester's tier and the discount forest from Postgres and
prints how the final price was reached.

Examples:
  # Retail price of a variant for an anonymous visitor
  pricectl quote --product 9a7d5c3e-1b2a-4f6e-8d9c-7b6a5f4e3d2c --modification 2c4e...

  # Price a basket line for a signed-in customer using an explicit DSN
  pricectl quote --product 9a7d... --user 31f0... --quantity 3 --db postgres://localhost/shop`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(product) == "" {
				return errors.New("--product is required")
			}
			if quantity <= 0 {
				return fmt.Errorf("--quantity must be positive, got %d", quantity)
			}
			quote := services.QuoteCommand{
				ProductID:      strings.TrimSpace(product),
				ModificationID: strings.TrimSpace(modification),
				UserID:         strings.TrimSpace(user),
				PriceTierID:    strings.TrimSpace(tier),
				SectionID:      strings.TrimSpace(section),
				Quantity:       quantity,
				Now:            opts.Clock().UTC(),
			}
			if cartTotal != "" {
				total, err := parseDecimal("--cart-total", cartTotal)
				if err != nil {
					return err
				}
				quote.CartTotal = decimal.NewNullDecimal(total)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			svc, closeFn, err := opts.QuoteService(ctx, dsn)
			if err != nil {
				return err
			}
			defer func() {
				if closeFn != nil {
					_ = closeFn()
				}
			}()

			result, err := svc.Quote(ctx, quote)
			if err != nil {
				return err
			}
			money, err := newMoneyFormatter(currencyCode, locale, pricing.DefaultPrecision)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), format, quoteReport(result), money)
		},
	}

	cmd.Flags().StringVar(&product, "product", "", "Product identifier")
	cmd.Flags().StringVar(&modification, "modification", "", "Product modification identifier")
	cmd.Flags().StringVar(&user, "user", "", "Requesting user identifier (anonymous when empty)")
	cmd.Flags().StringVar(&tier, "tier", "", "Force a price type instead of the user's one")
	cmd.Flags().StringVar(&section, "section", "", "Override the product's catalog section")
	cmd.Flags().IntVar(&quantity, "quantity", 1, "Line quantity")
	cmd.Flags().StringVar(&cartTotal, "cart-total", "", "Cart total used by cart_total conditions")
	cmd.Flags().StringVar(&dsn, "db", "", "Postgres connection string (defaults to PRICING_DATABASE_URL)")
	cmd.Flags().StringVar(&format, "format", formatTable, "Output format (table, json)")
	cmd.Flags().StringVar(&locale, "locale", "en", "Locale used for currency symbols")
	cmd.Flags().StringVar(&currencyCode, "currency", "UAH", "ISO 4217 currency code")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "Overall timeout")

	return cmd
}

func quoteReport(q services.PriceQuote) report {
	r := report{
		Name:            q.ProductName,
		ProductID:       q.ProductID,
		ModificationID:  q.ModificationID,
		PriceTypeID:     q.PriceTierID,
		UsedDefaultTier: q.UsedDefaultTier,
		BasePrice:       q.BasePrice,
		OldPrice:        q.OldPrice,
		FinalPrice:      q.Result.FinalPrice,
		TotalDiscount:   q.Result.TotalDiscount,
		Applied:         q.Result.Applied,
		Rejected:        q.Result.Rejected,
		Warnings:        q.Result.Warnings,
	}
	for _, step := range q.Steps {
		r.Steps = append(r.Steps, fmt.Sprintf("%s: %s", step.Name, step.Detail))
	}
	return r
}

// postgresQuoteService opens the storage stack described by the environment, optionally
// pointing it at dsn.
func postgresQuoteService(ctx context.Context, dsn string) (services.PricingService, func() error, error) {
	var loadOpts []config.Option
	if strings.TrimSpace(dsn) != "" {
		loadOpts = append(loadOpts, config.WithEnvMap(map[string]string{"PRICING_DATABASE_URL": dsn}))
	}
	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	provider := ppostgres.NewProvider(cfg.Database)
	if err := provider.Ping(ctx); err != nil {
		_ = provider.Close()
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	registry, err := pgrepo.NewRegistry(provider)
	if err != nil {
		_ = provider.Close()
		return nil, nil, err
	}

	svc, err := services.NewPricingService(services.PricingServiceDeps{
		Prices:     registry.Prices(),
		PriceTiers: registry.PriceTiers(),
		Profiles:   registry.Profiles(),
		Catalog:    registry.Catalog(),
		Discounts:  registry.Discounts(),
		Engine: pricing.NewEngine(pricing.EngineOptions{
			Precision: int32(cfg.Pricing.Precision),
			MaxDepth:  cfg.Pricing.MaxGroupDepth,
		}),
		DefaultTierID: cfg.Pricing.DefaultTierID,
	})
	if err != nil {
		_ = registry.Close(ctx)
		return nil, nil, err
	}
	return svc, func() error { return registry.Close(context.Background()) }, nil
}
