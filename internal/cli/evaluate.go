package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	domain "github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/pricing"
)

// ErrExpectationFailed is returned when a scenario's expect block does not match the outcome.
var ErrExpectationFailed = errors.New("scenario expectation failed")

// EvaluateCommand creates the evaluate command.
func EvaluateCommand(opts Options) *cobra.Command {
	var (
		file      string
		format    string
		locale    string
		precision int32
		maxDepth  int
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a pricing scenario file offline",
		Long: `Evaluate resolves the base price and discounts of a YAML or JSON scenario without
touching storage, then prints each applied and rejected discount with the reason.

Examples:
  # Human readable trace
  pricectl evaluate --file scenarios/spring-sale.yaml

  # Machine readable output
  pricectl evaluate --file scenarios/spring-sale.yaml --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			scenario, err := LoadScenario(file)
			if err != nil {
				return err
			}
			engine := pricing.NewEngine(pricing.EngineOptions{Precision: precision, MaxDepth: maxDepth})
			r, err := evaluateScenario(cmd.Context(), engine, scenario, opts)
			if err != nil {
				return err
			}
			money, err := newMoneyFormatter(scenario.Currency, locale, engine.Precision())
			if err != nil {
				return err
			}
			if err := writeReport(cmd.OutOrStdout(), format, r, money); err != nil {
				return err
			}
			return checkExpectations(scenario.Expect, r)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Scenario file (YAML or JSON)")
	cmd.Flags().StringVar(&format, "format", formatTable, "Output format (table, json)")
	cmd.Flags().StringVar(&locale, "locale", "en", "Locale used for currency symbols")
	cmd.Flags().Int32Var(&precision, "precision", pricing.DefaultPrecision, "Decimal places kept for amounts")
	cmd.Flags().IntVar(&maxDepth, "max-depth", pricing.DefaultMaxDepth, "Maximum discount group nesting")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func evaluateScenario(ctx context.Context, engine *pricing.Engine, s Scenario, opts Options) (report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ev, err := s.compile(opts.Clock())
	if err != nil {
		return report{}, err
	}

	requested := ev.tierID
	if requested == "" {
		requested = ev.defaultTierID
	}
	resolution := pricing.ResolvePrice(ev.prices, requested, ev.defaultTierID, ev.dctx.ModificationID)
	if !resolution.Available() {
		return report{}, fmt.Errorf("no price for price type %q (default %q)", requested, ev.defaultTierID)
	}

	roots := pricing.RootsForTier(ev.groups, resolution.PriceTierID)
	result, err := engine.ResolveDiscount(ctx, resolution.Price.Decimal, roots, ev.dctx, ev.now)
	if err != nil {
		return report{}, err
	}

	r := report{
		Name:            s.Name,
		ProductID:       ev.dctx.ProductID,
		ModificationID:  ev.dctx.ModificationID,
		PriceTypeID:     resolution.PriceTierID,
		UsedDefaultTier: resolution.UsedDefaultTier,
		BasePrice:       result.BasePrice,
		OldPrice:        resolution.OldPrice,
		FinalPrice:      result.FinalPrice,
		TotalDiscount:   result.TotalDiscount,
		Applied:         result.Applied,
		Rejected:        result.Rejected,
		Warnings:        result.Warnings,
	}
	r.Steps = append(r.Steps, fmt.Sprintf("evaluated at %s", ev.now.Format("2006-01-02T15:04:05Z07:00")))
	if resolution.UsedDefaultTier {
		r.Steps = append(r.Steps, fmt.Sprintf("price type %q has no row, fell back to %q", requested, resolution.PriceTierID))
	}
	r.Steps = append(r.Steps,
		fmt.Sprintf("base price %s from price type %s", resolution.Price.Decimal.String(), resolution.PriceTierID),
		fmt.Sprintf("%d of %d root groups, %d applied, %d rejected, %d warnings", len(roots), len(ev.groups), len(result.Applied), len(result.Rejected), len(result.Warnings)),
		fmt.Sprintf("final price %s", result.FinalPrice.String()),
	)
	return r, nil
}

func checkExpectations(expect *ScenarioExpect, r report) error {
	if expect == nil {
		return nil
	}
	var failures []string
	if expect.FinalPrice != "" {
		want, err := parseDecimal("expect.finalPrice", expect.FinalPrice)
		if err != nil {
			return err
		}
		if !want.Equal(r.FinalPrice) {
			failures = append(failures, fmt.Sprintf("final price %s, want %s", r.FinalPrice.String(), want.String()))
		}
	}
	if expect.Applied != nil {
		got := appliedIDs(r.Applied)
		if strings.Join(got, ",") != strings.Join(expect.Applied, ",") {
			failures = append(failures, fmt.Sprintf("applied %v, want %v", got, expect.Applied))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("%w: %s", ErrExpectationFailed, strings.Join(failures, "; "))
	}
	return nil
}

func appliedIDs(applied []domain.AppliedDiscount) []string {
	ids := make([]string, 0, len(applied))
	for _, a := range applied {
		ids = append(ids, a.DiscountID)
	}
	return ids
}
