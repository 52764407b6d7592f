package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/services"
)

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func runCommand(t *testing.T, opts Options, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	opts.Stdout = &out
	opts.Stderr = &out
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return fixedNow }
	}
	root := NewRootCommand(opts)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

type jsonReport struct {
	FinalPrice    decimal.Decimal `json:"finalPrice"`
	TotalDiscount decimal.Decimal `json:"totalDiscount"`
	PriceTypeID   string          `json:"priceTypeId"`
	Applied       []struct {
		DiscountID       string
		CalculatedAmount decimal.Decimal
	} `json:"applied"`
	Rejected []struct {
		DiscountID string
		Reason     string
	} `json:"rejected"`
	Steps []string `json:"steps"`
}

func evaluateJSON(t *testing.T, scenario string) jsonReport {
	t.Helper()
	out, err := runCommand(t, Options{}, "evaluate", "--file", writeScenario(t, scenario), "--format", "json")
	require.NoError(t, err, out)
	var r jsonReport
	require.NoError(t, json.Unmarshal([]byte(out), &r), out)
	return r
}

func TestEvaluatePercentDiscountInAndGroup(t *testing.T) {
	r := evaluateJSON(t, `
name: percent in and group
priceType: retail
prices:
  - priceType: retail
    product: mug
    price: "1000"
groups:
  - id: g1
    operator: and
    discounts:
      - id: d1
        type: percent
        value: "10"
expect:
  finalPrice: "900"
  applied: [d1]
`)
	assert.True(t, r.FinalPrice.Equal(decimal.NewFromInt(900)), r.FinalPrice.String())
	assert.True(t, r.TotalDiscount.Equal(decimal.NewFromInt(100)), r.TotalDiscount.String())
	require.Len(t, r.Applied, 1)
	assert.Equal(t, "d1", r.Applied[0].DiscountID)
	assert.Equal(t, "retail", r.PriceTypeID)
}

func TestEvaluateOrGroupKeepsHighestPriority(t *testing.T) {
	r := evaluateJSON(t, `
priceType: retail
prices:
  - {priceType: retail, product: mug, price: "500"}
groups:
  - id: g1
    operator: or
    discounts:
      - {id: fixed50, type: fixed_amount, value: "50", priority: 1}
      - {id: pct20, type: percent, value: "20", priority: 2}
`)
	assert.True(t, r.FinalPrice.Equal(decimal.NewFromInt(450)), r.FinalPrice.String())
	require.Len(t, r.Applied, 1)
	assert.Equal(t, "fixed50", r.Applied[0].DiscountID)
	require.Len(t, r.Rejected, 1)
	assert.Equal(t, "pct20", r.Rejected[0].DiscountID)
	assert.Contains(t, r.Rejected[0].Reason, "superseded")
}

func TestEvaluateFailedConditionLeavesPriceUntouched(t *testing.T) {
	r := evaluateJSON(t, `
priceType: retail
prices:
  - {priceType: retail, product: mug, price: "1000"}
context:
  cartTotal: "500"
groups:
  - id: g1
    operator: and
    discounts:
      - id: big-basket
        type: percent
        value: "5"
        conditions:
          - {id: c1, type: min_order_amount, operator: ">=", value: 1000}
`)
	assert.True(t, r.FinalPrice.Equal(decimal.NewFromInt(1000)), r.FinalPrice.String())
	assert.Empty(t, r.Applied)
	require.Len(t, r.Rejected, 1)
	assert.Contains(t, r.Rejected[0].Reason, "min_order_amount")
}

func TestEvaluateFixedPriceAboveBaseNeverGoesNegative(t *testing.T) {
	r := evaluateJSON(t, `
priceType: retail
prices:
  - {priceType: retail, product: mug, price: "100"}
groups:
  - id: g1
    operator: and
    discounts:
      - {id: target150, type: fixed_price, value: "150"}
`)
	assert.True(t, r.FinalPrice.Equal(decimal.Zero), r.FinalPrice.String())
	require.Len(t, r.Applied, 1)
	assert.True(t, r.Applied[0].CalculatedAmount.Equal(decimal.NewFromInt(100)))
}

func TestEvaluateMinGroupKeepsSmallestAmount(t *testing.T) {
	r := evaluateJSON(t, `
priceType: retail
prices:
  - {priceType: retail, product: mug, price: "500"}
groups:
  - id: g1
    operator: min
    discounts:
      - {id: off30, type: fixed_amount, value: "30"}
      - {id: off70, type: fixed_amount, value: "70"}
`)
	assert.True(t, r.FinalPrice.Equal(decimal.NewFromInt(470)), r.FinalPrice.String())
	require.Len(t, r.Applied, 1)
	assert.Equal(t, "off30", r.Applied[0].DiscountID)
	require.Len(t, r.Rejected, 1)
	assert.Equal(t, "off70", r.Rejected[0].DiscountID)
}

func TestEvaluateFallsBackToDefaultPriceType(t *testing.T) {
	r := evaluateJSON(t, `
priceType: wholesale
defaultPriceType: retail
prices:
  - {priceType: retail, product: mug, price: "80"}
`)
	assert.Equal(t, "retail", r.PriceTypeID)
	assert.True(t, r.FinalPrice.Equal(decimal.NewFromInt(80)))
	assert.Contains(t, r.Steps, `price type "wholesale" has no row, fell back to "retail"`)
}

func TestEvaluateSkipsGroupsOfOtherPriceTypes(t *testing.T) {
	r := evaluateJSON(t, `
priceType: retail
prices:
  - {priceType: retail, product: mug, price: "200"}
groups:
  - id: wholesale-only
    operator: and
    priceType: wholesale
    discounts:
      - {id: half, type: percent, value: "50"}
  - id: everyone
    operator: and
    discounts:
      - {id: ten, type: fixed_amount, value: "10"}
expect:
  finalPrice: "190"
  applied: [ten]
`)
	assert.True(t, r.FinalPrice.Equal(decimal.NewFromInt(190)), r.FinalPrice.String())
	require.Len(t, r.Applied, 1)
	assert.Equal(t, "ten", r.Applied[0].DiscountID)
	assert.Contains(t, r.Steps, "1 of 2 root groups, 1 applied, 0 rejected, 0 warnings")
}

func TestEvaluateTableOutput(t *testing.T) {
	path := writeScenario(t, `
name: spring sale
currency: USD
priceType: retail
prices:
  - {priceType: retail, product: mug, price: "200", oldPrice: "250"}
groups:
  - id: g1
    name: Spring
    operator: and
    discounts:
      - {id: d1, name: Ten percent, type: percent, value: "10"}
`)
	out, err := runCommand(t, Options{}, "evaluate", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "spring sale")
	assert.Contains(t, out, "180.00")
	assert.Contains(t, out, "250.00")
	assert.Contains(t, out, "d1 (Ten percent)")
	assert.Contains(t, out, "g1 (Spring)")
	assert.Contains(t, out, "STEPS")
}

func TestEvaluateExpectationMismatchFails(t *testing.T) {
	path := writeScenario(t, `
priceType: retail
prices:
  - {priceType: retail, product: mug, price: "100"}
expect:
  finalPrice: "90"
`)
	_, err := runCommand(t, Options{}, "evaluate", "--file", path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExpectationFailed))
	assert.Contains(t, err.Error(), "final price 100, want 90")
}

func TestEvaluateMissingPriceRow(t *testing.T) {
	path := writeScenario(t, `
priceType: vip
prices:
  - {priceType: retail, product: mug, price: "100"}
`)
	_, err := runCommand(t, Options{}, "evaluate", "--file", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no price")
}

func TestEvaluateRejectsUnknownFormat(t *testing.T) {
	path := writeScenario(t, `
prices:
  - {priceType: retail, product: mug, price: "100"}
priceType: retail
`)
	_, err := runCommand(t, Options{}, "evaluate", "--file", path, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestParseScenarioErrors(t *testing.T) {
	_, err := ParseScenario([]byte("name: empty\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one price")

	_, err = ParseScenario([]byte("prices: [oops"))
	require.Error(t, err)

	s, err := ParseScenario([]byte(`
prices:
  - {priceType: retail, product: mug, price: "ten"}
`))
	require.NoError(t, err)
	_, err = s.compile(fixedNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prices[0].price")
}

func TestScenarioCompileDefaults(t *testing.T) {
	s, err := ParseScenario([]byte(`
now: "2025-05-01T10:00:00+02:00"
priceType: retail
prices:
  - {priceType: retail, product: mug, price: "10"}
groups:
  - id: root
    operator: max
    children:
      - id: child
        operator: and
        active: false
        discounts:
          - id: d1
            type: percent
            value: "5"
            targets: [{type: product, id: mug}]
            conditions:
              - {id: c1, type: min_quantity, operator: ">=", value: 3}
`))
	require.NoError(t, err)
	ev, err := s.compile(fixedNow)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC), ev.now)
	assert.Equal(t, 1, ev.dctx.Quantity)
	assert.Equal(t, "mug", ev.dctx.ProductID)
	require.Len(t, ev.groups, 1)
	root := ev.groups[0]
	assert.True(t, root.IsActive)
	assert.Equal(t, domain.GroupOperatorMax, root.Operator)
	require.Len(t, root.Children, 1)
	child := root.Children[0]
	assert.False(t, child.IsActive)
	assert.Equal(t, "retail", child.PriceTierID)
	require.Len(t, child.Discounts, 1)
	d := child.Discounts[0]
	assert.Equal(t, "child", d.GroupID)
	assert.Equal(t, []domain.DiscountTarget{{Type: domain.TargetTypeProduct, TargetID: "mug"}}, d.Targets)
	require.Len(t, d.Conditions, 1)
	cond, ok := d.Conditions[0].(domain.MinQuantityCondition)
	require.True(t, ok, "got %T", d.Conditions[0])
	assert.True(t, cond.Value.Equal(decimal.NewFromInt(3)))
}

type stubQuoteService struct {
	quote services.PriceQuote
	err   error
	cmd   services.QuoteCommand
}

func (s *stubQuoteService) Quote(_ context.Context, cmd services.QuoteCommand) (services.PriceQuote, error) {
	s.cmd = cmd
	return s.quote, s.err
}

func (s *stubQuoteService) Evaluate(context.Context, services.EvaluateCommand) (services.PriceQuote, error) {
	return services.PriceQuote{}, errors.New("not used")
}

func TestQuoteUsesFactory(t *testing.T) {
	svc := &stubQuoteService{quote: services.PriceQuote{
		ProductID:   "mug",
		ProductName: "Mug",
		PriceTierID: "retail",
		BasePrice:   decimal.NewFromInt(100),
		Result: domain.ResolutionResult{
			BasePrice:     decimal.NewFromInt(100),
			FinalPrice:    decimal.NewFromInt(90),
			TotalDiscount: decimal.NewFromInt(10),
			Applied: []domain.AppliedDiscount{{
				DiscountID: "d1", Type: domain.DiscountTypePercent,
				Value: decimal.NewFromInt(10), CalculatedAmount: decimal.NewFromInt(10),
			}},
		},
		Steps: []services.QuoteStep{{Name: "tier", Detail: "profile tier retail"}},
	}}
	var gotDSN string
	closed := false
	opts := Options{QuoteService: func(_ context.Context, dsn string) (services.PricingService, func() error, error) {
		gotDSN = dsn
		return svc, func() error { closed = true; return nil }, nil
	}}

	out, err := runCommand(t, opts, "quote", "--product", "mug", "--user", "u1", "--quantity", "2", "--cart-total", "300", "--db", "postgres://local/shop", "--format", "json")
	require.NoError(t, err, out)

	assert.Equal(t, "postgres://local/shop", gotDSN)
	assert.True(t, closed)
	assert.Equal(t, "mug", svc.cmd.ProductID)
	assert.Equal(t, "u1", svc.cmd.UserID)
	assert.Equal(t, 2, svc.cmd.Quantity)
	require.True(t, svc.cmd.CartTotal.Valid)
	assert.True(t, svc.cmd.CartTotal.Decimal.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, fixedNow, svc.cmd.Now)

	var r jsonReport
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.True(t, r.FinalPrice.Equal(decimal.NewFromInt(90)))
	assert.Equal(t, []string{"tier: profile tier retail"}, r.Steps)
}

func TestQuoteValidatesFlags(t *testing.T) {
	opts := Options{QuoteService: func(context.Context, string) (services.PricingService, func() error, error) {
		t.Fatal("factory must not be called")
		return nil, nil, nil
	}}
	_, err := runCommand(t, opts, "quote")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--product")

	_, err = runCommand(t, opts, "quote", "--product", "mug", "--quantity", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--quantity")
}

func TestQuotePropagatesServiceErrors(t *testing.T) {
	svc := &stubQuoteService{err: services.ErrProductNotFound}
	opts := Options{QuoteService: func(context.Context, string) (services.PricingService, func() error, error) {
		return svc, nil, nil
	}}
	_, err := runCommand(t, opts, "quote", "--product", "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrProductNotFound))
}
