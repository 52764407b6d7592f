package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/platform/observability"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/repositories"
)

type fakeRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e fakeRepoError) Error() string       { return "fake repository error" }
func (e fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e fakeRepoError) IsConflict() bool    { return e.conflict }
func (e fakeRepoError) IsUnavailable() bool { return e.unavailable }

var (
	errFakeNotFound    = fakeRepoError{notFound: true}
	errFakeConflict    = fakeRepoError{conflict: true}
	errFakeUnavailable = fakeRepoError{unavailable: true}
)

type fakePrices struct {
	entries map[string][]domain.PriceEntry
	err     error
}

func (f *fakePrices) ListByProduct(_ context.Context, productID string) ([]domain.PriceEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[productID], nil
}

type fakeTiers struct {
	id    string
	err   error
	calls int
}

func (f *fakeTiers) DefaultTierID(context.Context) (string, error) {
	f.calls++
	return f.id, f.err
}

type fakeProfiles struct {
	profiles map[string]domain.PricingProfile
}

func (f *fakeProfiles) FindPricingProfile(_ context.Context, userID string) (domain.PricingProfile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return domain.PricingProfile{}, errFakeNotFound
	}
	return p, nil
}

type fakeCatalog struct {
	products map[string]domain.ProductRef
}

func (f *fakeCatalog) FindProduct(_ context.Context, productID string) (domain.ProductRef, error) {
	p, ok := f.products[productID]
	if !ok {
		return domain.ProductRef{}, errFakeNotFound
	}
	return p, nil
}

type fakeDiscounts struct {
	rows      map[string]domain.DiscountRows
	err       error
	requested []string
}

func (f *fakeDiscounts) ListRowsByPriceTier(_ context.Context, tierID string) (domain.DiscountRows, error) {
	f.requested = append(f.requested, tierID)
	if f.err != nil {
		return domain.DiscountRows{}, f.err
	}
	return f.rows[tierID], nil
}

type recordingMetrics struct {
	mu          sync.Mutex
	outcomes    []observability.PriceOutcome
	unavailable []string
}

func (m *recordingMetrics) RecordResolution(_ context.Context, outcome observability.PriceOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) RecordUnavailable(_ context.Context, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = append(m.unavailable, source)
}

type loggedEvent struct {
	event  string
	fields map[string]any
}

type eventLog struct {
	mu     sync.Mutex
	events []loggedEvent
}

func (l *eventLog) hook(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, loggedEvent{event: event, fields: fields})
}

func (l *eventLog) count(event string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.event == event {
			n++
		}
	}
	return n
}

var quoteNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type pricingFixture struct {
	prices    *fakePrices
	tiers     *fakeTiers
	profiles  *fakeProfiles
	catalog   *fakeCatalog
	discounts *fakeDiscounts
	metrics   *recordingMetrics
	log       *eventLog
}

func newPricingFixture() *pricingFixture {
	return &pricingFixture{
		prices: &fakePrices{entries: map[string][]domain.PriceEntry{
			"mug": {
				{PriceTierID: "retail", ProductID: "mug", Price: dec("100"), OldPrice: decimal.NewNullDecimal(dec("120"))},
				{PriceTierID: "wholesale", ProductID: "mug", Price: dec("80")},
				{PriceTierID: "retail", ProductID: "mug", ModificationID: "mug-xl", Price: dec("150")},
			},
		}},
		tiers: &fakeTiers{id: "retail"},
		profiles: &fakeProfiles{profiles: map[string]domain.PricingProfile{
			"vip-user":   {UserID: "vip-user", UserCategoryID: "vip", PriceTierID: "wholesale"},
			"plain-user": {UserID: "plain-user"},
		}},
		catalog: &fakeCatalog{products: map[string]domain.ProductRef{
			"mug": {ID: "mug", Name: "Mug", SectionID: "kitchen", IsActive: true},
		}},
		discounts: &fakeDiscounts{rows: map[string]domain.DiscountRows{}},
		metrics:   &recordingMetrics{},
		log:       &eventLog{},
	}
}

func (f *pricingFixture) service(t *testing.T) PricingService {
	t.Helper()
	svc, err := NewPricingService(PricingServiceDeps{
		Prices:     f.prices,
		PriceTiers: f.tiers,
		Profiles:   f.profiles,
		Catalog:    f.catalog,
		Discounts:  f.discounts,
		Metrics:    f.metrics,
		Clock:      func() time.Time { return quoteNow },
		Logger:     f.log.hook,
	})
	if err != nil {
		t.Fatalf("NewPricingService: %v", err)
	}
	return svc
}

func percentGroup(tier, groupID, discountID, value string, conditions ...domain.DiscountConditionRow) domain.DiscountRows {
	return domain.DiscountRows{
		Groups:     []domain.DiscountGroupRow{{ID: groupID, PriceTierID: tier, Name: "Group " + groupID, Operator: "and", IsActive: true}},
		Discounts:  []domain.DiscountRow{{ID: discountID, GroupID: groupID, Name: "Discount " + discountID, Type: "percent", Value: dec(value), IsActive: true}},
		Conditions: conditions,
	}
}

func TestNewPricingServiceRequiresRepositories(t *testing.T) {
	if _, err := NewPricingService(PricingServiceDeps{}); err == nil {
		t.Fatal("expected error without repositories")
	}
	if _, err := NewPricingService(PricingServiceDeps{Prices: &fakePrices{}, Discounts: &fakeDiscounts{}}); err == nil {
		t.Fatal("expected error without catalog")
	}
}

func TestQuoteUsesProfileTierAndCategory(t *testing.T) {
	f := newPricingFixture()
	f.discounts.rows["wholesale"] = percentGroup("wholesale", "g1", "d1", "10", domain.DiscountConditionRow{
		ID: "c1", DiscountID: "d1", ConditionType: "user_category", Value: json.RawMessage(`["vip"]`),
	})

	quote, err := f.service(t).Quote(context.Background(), QuoteCommand{ProductID: "mug", UserID: "vip-user", Quantity: 2})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.PriceTierID != "wholesale" || quote.UsedDefaultTier {
		t.Fatalf("expected wholesale tier without fallback, got %+v", quote)
	}
	if !quote.BasePrice.Equal(dec("80")) {
		t.Fatalf("expected base 80, got %s", quote.BasePrice)
	}
	if !quote.Result.FinalPrice.Equal(dec("72")) || !quote.Result.TotalDiscount.Equal(dec("8")) {
		t.Fatalf("unexpected result %+v", quote.Result)
	}
	if quote.Context.SectionID != "kitchen" || quote.Context.UserCategoryID != "vip" || !quote.Context.IsLoggedIn {
		t.Fatalf("unexpected context %+v", quote.Context)
	}
	if !quote.Context.CartTotal.Equal(dec("160")) {
		t.Fatalf("expected derived cart total 160, got %s", quote.Context.CartTotal)
	}
	if quote.ProductName != "Mug" {
		t.Fatalf("expected product name, got %q", quote.ProductName)
	}
	if len(quote.Steps) != 5 {
		t.Fatalf("expected five steps, got %+v", quote.Steps)
	}
	if len(f.metrics.outcomes) != 1 || !f.metrics.outcomes[0].Discounted || f.metrics.outcomes[0].Applied != 1 {
		t.Fatalf("unexpected metrics %+v", f.metrics.outcomes)
	}
	if f.log.count("pricing_quote") != 1 {
		t.Fatalf("expected a pricing_quote event")
	}
}

func TestQuoteFallsBackToDefaultTier(t *testing.T) {
	f := newPricingFixture()
	f.prices.entries["mug"] = []domain.PriceEntry{{PriceTierID: "retail", ProductID: "mug", Price: dec("100")}}
	f.discounts.rows["retail"] = percentGroup("retail", "g1", "d1", "5")

	quote, err := f.service(t).Quote(context.Background(), QuoteCommand{ProductID: "mug", UserID: "vip-user"})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.RequestedTierID != "wholesale" || quote.PriceTierID != "retail" || !quote.UsedDefaultTier {
		t.Fatalf("expected default tier fallback, got %+v", quote)
	}
	if len(f.discounts.requested) != 1 || f.discounts.requested[0] != "retail" {
		t.Fatalf("expected discounts of the priced tier, got %v", f.discounts.requested)
	}
	if !quote.Result.FinalPrice.Equal(dec("95")) {
		t.Fatalf("expected 95, got %s", quote.Result.FinalPrice)
	}
}

func TestQuoteAnonymousUsesDefaultTier(t *testing.T) {
	f := newPricingFixture()
	f.discounts.rows["retail"] = percentGroup("retail", "g1", "d1", "10", domain.DiscountConditionRow{
		ID: "c1", DiscountID: "d1", ConditionType: "user_logged_in", Value: json.RawMessage(`true`),
	})

	quote, err := f.service(t).Quote(context.Background(), QuoteCommand{ProductID: "mug"})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.PriceTierID != "retail" || quote.Context.IsLoggedIn {
		t.Fatalf("unexpected quote %+v", quote)
	}
	if !quote.Result.FinalPrice.Equal(dec("100")) || len(quote.Result.Rejected) != 1 {
		t.Fatalf("expected logged-in discount rejected, got %+v", quote.Result)
	}
	if !strings.HasPrefix(quote.Result.Rejected[0].Reason, "condition failed") {
		t.Fatalf("unexpected reason %q", quote.Result.Rejected[0].Reason)
	}
	if !quote.OldPrice.Valid || !quote.OldPrice.Decimal.Equal(dec("120")) {
		t.Fatalf("expected old price carried, got %+v", quote.OldPrice)
	}
}

func TestQuoteUserWithoutProfileIsLoggedIn(t *testing.T) {
	f := newPricingFixture()
	quote, err := f.service(t).Quote(context.Background(), QuoteCommand{ProductID: "mug", UserID: "unknown"})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !quote.Context.IsLoggedIn || quote.Context.UserCategoryID != "" || quote.PriceTierID != "retail" {
		t.Fatalf("unexpected context %+v", quote.Context)
	}
}

func TestQuoteVariantNeverUsesProductPrice(t *testing.T) {
	f := newPricingFixture()
	svc := f.service(t)

	quote, err := svc.Quote(context.Background(), QuoteCommand{ProductID: "mug", ModificationID: "mug-xl"})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !quote.BasePrice.Equal(dec("150")) {
		t.Fatalf("expected variant price, got %s", quote.BasePrice)
	}

	_, err = svc.Quote(context.Background(), QuoteCommand{ProductID: "mug", ModificationID: "mug-s"})
	if !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
	if len(f.metrics.unavailable) != 1 {
		t.Fatalf("expected unavailable metric, got %v", f.metrics.unavailable)
	}
}

func TestQuoteExplicitOverridesAndCartTotal(t *testing.T) {
	f := newPricingFixture()
	f.discounts.rows["retail"] = domain.DiscountRows{
		Groups:    []domain.DiscountGroupRow{{ID: "g1", Operator: "and", IsActive: true}},
		Discounts: []domain.DiscountRow{{ID: "d1", GroupID: "g1", Type: "fixed_amount", Value: dec("15"), IsActive: true}},
		Targets:   []domain.DiscountTargetRow{{ID: "t1", DiscountID: "d1", TargetType: "section", TargetID: "garden"}},
		Conditions: []domain.DiscountConditionRow{{
			ID: "c1", DiscountID: "d1", ConditionType: "min_order_amount", Operator: ">=", Value: json.RawMessage(`500`),
		}},
	}

	quote, err := f.service(t).Quote(context.Background(), QuoteCommand{
		ProductID:   "mug",
		UserID:      "vip-user",
		PriceTierID: "retail",
		SectionID:   "garden",
		CartTotal:   decimal.NewNullDecimal(dec("500")),
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.PriceTierID != "retail" || !quote.Result.FinalPrice.Equal(dec("85")) {
		t.Fatalf("unexpected quote %+v", quote.Result)
	}
}

func TestQuoteExistingSubtotalFeedsCartTotal(t *testing.T) {
	f := newPricingFixture()
	quote, err := f.service(t).Quote(context.Background(), QuoteCommand{
		ProductID:        "mug",
		Quantity:         3,
		ExistingSubtotal: decimal.NewNullDecimal(dec("40.50")),
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !quote.Context.CartTotal.Equal(dec("340.50")) {
		t.Fatalf("expected 340.50, got %s", quote.Context.CartTotal)
	}
}

func TestQuoteValidation(t *testing.T) {
	svc := newPricingFixture().service(t)
	cases := []QuoteCommand{
		{},
		{ProductID: "mug", Quantity: -1},
		{ProductID: "mug", CartTotal: decimal.NewNullDecimal(dec("-1"))},
	}
	for _, cmd := range cases {
		if _, err := svc.Quote(context.Background(), cmd); !errors.Is(err, ErrPricingInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", cmd, err)
		}
	}
}

func TestQuoteErrorsTranslate(t *testing.T) {
	f := newPricingFixture()
	f.catalog.products = map[string]domain.ProductRef{}
	if _, err := f.service(t).Quote(context.Background(), QuoteCommand{ProductID: "mug"}); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	f = newPricingFixture()
	f.prices.err = errFakeUnavailable
	if _, err := f.service(t).Quote(context.Background(), QuoteCommand{ProductID: "mug"}); !errors.Is(err, ErrPricingUnavailable) {
		t.Fatalf("expected ErrPricingUnavailable, got %v", err)
	}

	f = newPricingFixture()
	f.discounts.err = context.Canceled
	if _, err := f.service(t).Quote(context.Background(), QuoteCommand{ProductID: "mug"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation passed through, got %v", err)
	}
}

func TestQuoteCycleIsConfigurationError(t *testing.T) {
	f := newPricingFixture()
	f.discounts.rows["retail"] = domain.DiscountRows{
		Groups: []domain.DiscountGroupRow{
			{ID: "root", Operator: "and", IsActive: true},
			{ID: "a", ParentID: "b", Operator: "and", IsActive: true},
			{ID: "b", ParentID: "a", Operator: "and", IsActive: true},
		},
	}
	_, err := f.service(t).Quote(context.Background(), QuoteCommand{ProductID: "mug"})
	if !errors.Is(err, ErrPricingConfiguration) {
		t.Fatalf("expected ErrPricingConfiguration, got %v", err)
	}
	if f.log.count("pricing_structural_error") != 1 {
		t.Fatal("expected structural error event")
	}
}

func TestQuoteSurfacesWarnings(t *testing.T) {
	f := newPricingFixture()
	rows := percentGroup("retail", "g1", "d1", "10", domain.DiscountConditionRow{
		ID: "c1", DiscountID: "d1", ConditionType: "birthday", Value: json.RawMessage(`true`),
	})
	rows.Targets = append(rows.Targets, domain.DiscountTargetRow{ID: "t9", DiscountID: "ghost", TargetType: "all"})
	f.discounts.rows["retail"] = rows

	quote, err := f.service(t).Quote(context.Background(), QuoteCommand{ProductID: "mug"})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	codes := map[domain.WarningCode]bool{}
	for _, w := range quote.Result.Warnings {
		codes[w.Code] = true
	}
	if !codes[domain.WarningOrphanRow] || !codes[domain.WarningUnknownCondition] {
		t.Fatalf("expected orphan and unknown condition warnings, got %+v", quote.Result.Warnings)
	}
	if quote.Result.Warnings[0].Code != domain.WarningOrphanRow {
		t.Fatalf("expected assembly warnings first, got %+v", quote.Result.Warnings)
	}
	if f.log.count("pricing_warning") != len(quote.Result.Warnings) {
		t.Fatalf("expected one event per warning")
	}
	if !quote.Result.FinalPrice.Equal(dec("100")) {
		t.Fatalf("expected unknown condition to block the discount, got %s", quote.Result.FinalPrice)
	}
}

func TestQuoteConfiguredDefaultTierSkipsLookup(t *testing.T) {
	f := newPricingFixture()
	svc, err := NewPricingService(PricingServiceDeps{
		Prices:        f.prices,
		PriceTiers:    f.tiers,
		Catalog:       f.catalog,
		Discounts:     f.discounts,
		DefaultTierID: "wholesale",
	})
	if err != nil {
		t.Fatalf("NewPricingService: %v", err)
	}
	quote, err := svc.Quote(context.Background(), QuoteCommand{ProductID: "mug", Now: quoteNow})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.PriceTierID != "wholesale" || f.tiers.calls != 0 {
		t.Fatalf("expected configured default tier, got %s (lookups=%d)", quote.PriceTierID, f.tiers.calls)
	}
	if !quote.PricedAt.Equal(quoteNow) {
		t.Fatalf("expected supplied instant, got %s", quote.PricedAt)
	}
}

func TestEvaluateWithoutStorage(t *testing.T) {
	f := newPricingFixture()
	svc := f.service(t)

	quote, err := svc.Evaluate(context.Background(), EvaluateCommand{
		Prices: []domain.PriceEntry{
			{PriceTierID: "retail", ProductID: "p1", Price: dec("200")},
		},
		Groups: []domain.DiscountGroup{{
			ID: "g1", Operator: domain.GroupOperatorMax, IsActive: true,
			Discounts: []domain.Discount{
				{ID: "a", Type: domain.DiscountTypePercent, Value: dec("10"), IsActive: true},
				{ID: "b", Type: domain.DiscountTypeFixedAmount, Value: dec("30"), IsActive: true},
			},
		}},
		DefaultTierID: "retail",
		Context:       domain.DiscountContext{ProductID: "p1"},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !quote.Result.FinalPrice.Equal(dec("170")) || quote.Context.Quantity != 1 {
		t.Fatalf("unexpected evaluation %+v", quote)
	}
	if len(quote.Result.Applied) != 1 || quote.Result.Applied[0].DiscountID != "b" {
		t.Fatalf("expected max discount applied, got %+v", quote.Result.Applied)
	}
	if len(f.discounts.requested) != 0 {
		t.Fatal("evaluate must not read storage")
	}

	if _, err := svc.Evaluate(context.Background(), EvaluateCommand{Context: domain.DiscountContext{ProductID: "p1"}}); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
}

func TestEvaluateSkipsGroupsOfOtherPriceTiers(t *testing.T) {
	f := newPricingFixture()
	svc := f.service(t)

	quote, err := svc.Evaluate(context.Background(), EvaluateCommand{
		Prices: []domain.PriceEntry{
			{PriceTierID: "retail", ProductID: "p1", Price: dec("200")},
		},
		Groups: []domain.DiscountGroup{
			{
				ID: "wholesale-only", Operator: domain.GroupOperatorAnd, IsActive: true, PriceTierID: "wholesale",
				Discounts: []domain.Discount{{ID: "half", Type: domain.DiscountTypePercent, Value: dec("50"), IsActive: true}},
			},
			{
				ID: "retail-only", Operator: domain.GroupOperatorAnd, IsActive: true, PriceTierID: "retail",
				Discounts: []domain.Discount{{ID: "ten", Type: domain.DiscountTypeFixedAmount, Value: dec("10"), IsActive: true}},
			},
			{
				ID: "any-tier", Operator: domain.GroupOperatorAnd, IsActive: true,
				Discounts: []domain.Discount{{ID: "five", Type: domain.DiscountTypeFixedAmount, Value: dec("5"), IsActive: true}},
			},
		},
		PriceTierID:   "retail",
		DefaultTierID: "retail",
		Context:       domain.DiscountContext{ProductID: "p1"},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !quote.Result.FinalPrice.Equal(dec("185")) {
		t.Fatalf("expected wholesale group to be skipped, final %s", quote.Result.FinalPrice)
	}
	for _, a := range quote.Result.Applied {
		if a.DiscountID == "half" {
			t.Fatalf("wholesale discount applied to retail price: %+v", quote.Result.Applied)
		}
	}
}

var (
	_ repositories.PriceRepository     = (*fakePrices)(nil)
	_ repositories.PriceTierRepository = (*fakeTiers)(nil)
	_ repositories.ProfileRepository   = (*fakeProfiles)(nil)
	_ repositories.CatalogRepository   = (*fakeCatalog)(nil)
	_ repositories.DiscountRepository  = (*fakeDiscounts)(nil)
)
