package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/pricing"
	"github.com/VSydorenko/simplyCMS-core-sub001/internal/repositories"
)

// engineCheckName keys the in-process engine self test in health reports.
const engineCheckName = "pricingEngine"

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service.
// Engine is optional; when set its settings are reported and a known discount is
// resolved through it on every report.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Engine           *pricing.Engine
	Pricing          domain.PricingSettings
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	health   repositories.HealthRepository
	engine   *pricing.Engine
	settings domain.PricingSettings
	now      func() time.Time
	build    BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service behind the health endpoints.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}
	settings := deps.Pricing
	if deps.Engine != nil {
		settings.Precision = deps.Engine.Precision()
		settings.MaxGroupDepth = deps.Engine.MaxDepth()
	}
	return &systemService{
		health:   deps.HealthRepository,
		engine:   deps.Engine,
		settings: settings,
		now:      func() time.Time { return clock().UTC() },
		build:    build,
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}
	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.now()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	report.Version = firstNonEmpty(report.Version, s.build.Version)
	report.CommitSHA = firstNonEmpty(report.CommitSHA, s.build.CommitSHA)
	report.Environment = firstNonEmpty(report.Environment, s.build.Environment)
	if report.Uptime <= 0 && !s.build.StartedAt.IsZero() {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	report.Pricing = s.settings

	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if s.engine != nil {
		check := s.checkEngine(ctx)
		report.Checks[engineCheckName] = check
		if check.Status == domain.HealthStatusError {
			report.Status = domain.HealthStatusError
		}
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = overallStatus(report.Checks)
	}
	return report, nil
}

// checkEngine prices 100 with a single 10 percent discount and expects 90 back.
func (s *systemService) checkEngine(ctx context.Context) domain.SystemHealthCheck {
	started := s.now()
	check := domain.SystemHealthCheck{
		Status: domain.HealthStatusOK,
		Detail: fmt.Sprintf("precision %d, max group depth %d", s.settings.Precision, s.settings.MaxGroupDepth),
	}
	sample := domain.DiscountGroup{
		ID:       "health",
		Operator: domain.GroupOperatorAnd,
		IsActive: true,
		Discounts: []domain.Discount{{
			ID:       "health",
			Type:     domain.DiscountTypePercent,
			Value:    decimal.NewFromInt(10),
			IsActive: true,
		}},
	}
	want := decimal.NewFromInt(90)
	result, err := s.engine.ResolveDiscount(ctx, decimal.NewFromInt(100), []domain.DiscountGroup{sample}, domain.DiscountContext{Quantity: 1}, started)
	switch {
	case err != nil:
		check.Status = domain.HealthStatusError
		check.Error = err.Error()
	case !result.FinalPrice.Equal(want):
		check.Status = domain.HealthStatusError
		check.Error = fmt.Sprintf("final price %s, want %s", result.FinalPrice.String(), want.String())
	}
	check.CheckedAt = s.now()
	check.Latency = check.CheckedAt.Sub(started)
	return check
}

func overallStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
