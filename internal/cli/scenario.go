package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	domain "github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/pricing"
)

// Scenario is a self-contained pricing fixture. JSON files load too since YAML is a superset.
type Scenario struct {
	Name             string          `yaml:"name"`
	Now              string          `yaml:"now"`
	Currency         string          `yaml:"currency"`
	PriceType        string          `yaml:"priceType"`
	DefaultPriceType string          `yaml:"defaultPriceType"`
	Prices           []scenarioPrice `yaml:"prices"`
	Context          scenarioContext `yaml:"context"`
	Groups           []scenarioGroup `yaml:"groups"`
	Expect           *ScenarioExpect `yaml:"expect"`
}

type scenarioPrice struct {
	PriceType    string `yaml:"priceType"`
	Product      string `yaml:"product"`
	Modification string `yaml:"modification"`
	Price        string `yaml:"price"`
	OldPrice     string `yaml:"oldPrice"`
}

type scenarioContext struct {
	User         string `yaml:"user"`
	UserCategory string `yaml:"userCategory"`
	Quantity     int    `yaml:"quantity"`
	CartTotal    string `yaml:"cartTotal"`
	Product      string `yaml:"product"`
	Modification string `yaml:"modification"`
	Section      string `yaml:"section"`
	LoggedIn     bool   `yaml:"loggedIn"`
}

type scenarioGroup struct {
	ID        string             `yaml:"id"`
	Name      string             `yaml:"name"`
	Operator  string             `yaml:"operator"`
	Active    *bool              `yaml:"active"`
	Priority  int                `yaml:"priority"`
	StartsAt  string             `yaml:"startsAt"`
	EndsAt    string             `yaml:"endsAt"`
	PriceType string             `yaml:"priceType"`
	Discounts []scenarioDiscount `yaml:"discounts"`
	Children  []scenarioGroup    `yaml:"children"`
}

type scenarioDiscount struct {
	ID         string              `yaml:"id"`
	Name       string              `yaml:"name"`
	Type       string              `yaml:"type"`
	Value      string              `yaml:"value"`
	Priority   int                 `yaml:"priority"`
	Active     *bool               `yaml:"active"`
	StartsAt   string              `yaml:"startsAt"`
	EndsAt     string              `yaml:"endsAt"`
	Targets    []scenarioTarget    `yaml:"targets"`
	Conditions []scenarioCondition `yaml:"conditions"`
}

type scenarioTarget struct {
	Type string `yaml:"type"`
	ID   string `yaml:"id"`
}

type scenarioCondition struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"`
	Operator string `yaml:"operator"`
	Value    any    `yaml:"value"`
}

// ScenarioExpect lets a fixture assert its own outcome.
type ScenarioExpect struct {
	FinalPrice string   `yaml:"finalPrice"`
	Applied    []string `yaml:"applied"`
}

// LoadScenario reads and parses a scenario file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes a YAML or JSON scenario document.
func ParseScenario(data []byte) (Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario: %w", err)
	}
	if len(s.Prices) == 0 {
		return Scenario{}, errors.New("parse scenario: at least one price is required")
	}
	return s, nil
}

// evaluation is a scenario translated to domain values.
type evaluation struct {
	prices        []domain.PriceEntry
	groups        []domain.DiscountGroup
	tierID        string
	defaultTierID string
	dctx          domain.DiscountContext
	now           time.Time
}

func (s Scenario) compile(fallbackNow time.Time) (evaluation, error) {
	ev := evaluation{
		tierID:        strings.TrimSpace(s.PriceType),
		defaultTierID: strings.TrimSpace(s.DefaultPriceType),
		now:           fallbackNow.UTC(),
	}
	if s.Now != "" {
		now, err := parseTime("now", s.Now)
		if err != nil {
			return evaluation{}, err
		}
		ev.now = now
	}

	for i, p := range s.Prices {
		price, err := parseDecimal(fmt.Sprintf("prices[%d].price", i), p.Price)
		if err != nil {
			return evaluation{}, err
		}
		entry := domain.PriceEntry{
			PriceTierID:    strings.TrimSpace(p.PriceType),
			ProductID:      strings.TrimSpace(p.Product),
			ModificationID: strings.TrimSpace(p.Modification),
			Price:          price,
		}
		if p.OldPrice != "" {
			old, err := parseDecimal(fmt.Sprintf("prices[%d].oldPrice", i), p.OldPrice)
			if err != nil {
				return evaluation{}, err
			}
			entry.OldPrice = decimal.NewNullDecimal(old)
		}
		ev.prices = append(ev.prices, entry)
	}

	cart := decimal.Zero
	if s.Context.CartTotal != "" {
		v, err := parseDecimal("context.cartTotal", s.Context.CartTotal)
		if err != nil {
			return evaluation{}, err
		}
		cart = v
	}
	quantity := s.Context.Quantity
	if quantity == 0 {
		quantity = 1
	}
	product := strings.TrimSpace(s.Context.Product)
	if product == "" {
		product = ev.prices[0].ProductID
	}
	ev.dctx = domain.DiscountContext{
		UserID:         strings.TrimSpace(s.Context.User),
		UserCategoryID: strings.TrimSpace(s.Context.UserCategory),
		Quantity:       quantity,
		CartTotal:      cart,
		ProductID:      product,
		ModificationID: strings.TrimSpace(s.Context.Modification),
		SectionID:      strings.TrimSpace(s.Context.Section),
		IsLoggedIn:     s.Context.LoggedIn,
	}

	for i, g := range s.Groups {
		group, err := g.compile(fmt.Sprintf("groups[%d]", i), ev.tierID)
		if err != nil {
			return evaluation{}, err
		}
		ev.groups = append(ev.groups, group)
	}
	return ev, nil
}

func (g scenarioGroup) compile(path, parentTier string) (domain.DiscountGroup, error) {
	tier := strings.TrimSpace(g.PriceType)
	if tier == "" {
		tier = parentTier
	}
	starts, err := parseOptionalTime(path+".startsAt", g.StartsAt)
	if err != nil {
		return domain.DiscountGroup{}, err
	}
	ends, err := parseOptionalTime(path+".endsAt", g.EndsAt)
	if err != nil {
		return domain.DiscountGroup{}, err
	}
	group := domain.DiscountGroup{
		ID:          strings.TrimSpace(g.ID),
		Name:        g.Name,
		Operator:    domain.GroupOperator(strings.ToLower(strings.TrimSpace(g.Operator))),
		IsActive:    g.Active == nil || *g.Active,
		Priority:    g.Priority,
		StartsAt:    starts,
		EndsAt:      ends,
		PriceTierID: tier,
	}
	for i, d := range g.Discounts {
		discount, err := d.compile(fmt.Sprintf("%s.discounts[%d]", path, i), group.ID)
		if err != nil {
			return domain.DiscountGroup{}, err
		}
		group.Discounts = append(group.Discounts, discount)
	}
	for i, child := range g.Children {
		compiled, err := child.compile(fmt.Sprintf("%s.children[%d]", path, i), tier)
		if err != nil {
			return domain.DiscountGroup{}, err
		}
		group.Children = append(group.Children, compiled)
	}
	return group, nil
}

func (d scenarioDiscount) compile(path, groupID string) (domain.Discount, error) {
	value, err := parseDecimal(path+".value", d.Value)
	if err != nil {
		return domain.Discount{}, err
	}
	starts, err := parseOptionalTime(path+".startsAt", d.StartsAt)
	if err != nil {
		return domain.Discount{}, err
	}
	ends, err := parseOptionalTime(path+".endsAt", d.EndsAt)
	if err != nil {
		return domain.Discount{}, err
	}
	discount := domain.Discount{
		ID:       strings.TrimSpace(d.ID),
		GroupID:  groupID,
		Name:     d.Name,
		Type:     domain.DiscountType(strings.ToLower(strings.TrimSpace(d.Type))),
		Value:    value,
		Priority: d.Priority,
		IsActive: d.Active == nil || *d.Active,
		StartsAt: starts,
		EndsAt:   ends,
	}
	for _, t := range d.Targets {
		discount.Targets = append(discount.Targets, domain.DiscountTarget{
			Type:     domain.TargetType(strings.ToLower(strings.TrimSpace(t.Type))),
			TargetID: strings.TrimSpace(t.ID),
		})
	}
	for i, c := range d.Conditions {
		raw, err := json.Marshal(c.Value)
		if err != nil {
			return domain.Discount{}, fmt.Errorf("%s.conditions[%d].value: %w", path, i, err)
		}
		discount.Conditions = append(discount.Conditions, pricing.DecodeCondition(domain.DiscountConditionRow{
			ID:            c.ID,
			DiscountID:    discount.ID,
			ConditionType: c.Type,
			Operator:      c.Operator,
			Value:         raw,
		}))
	}
	return discount, nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %q is not a number", field, raw)
	}
	return v, nil
}

func parseTime(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %q is not an RFC3339 timestamp", field, raw)
	}
	return t.UTC(), nil
}

func parseOptionalTime(field, raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	return parseTime(field, raw)
}
