package service

import (
	"math"
	"time"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/pkg/config"
)

// Policy holds the severity break points of the alert engine and its clock
type Policy struct {
	stockCritical  float64
	stockWarning   float64
	expiryCritical float64
	windowDias     int
	loc            *time.Location
	now            func() time.Time
}

// NewPolicy builds a policy from validated alert configuration
func NewPolicy(cfg config.AlertsConfig) *Policy {
	return &Policy{
		stockCritical:  cfg.StockCriticalRatio,
		stockWarning:   cfg.StockWarningRatio,
		expiryCritical: cfg.ExpiryCriticalFraction,
		windowDias:     cfg.ExpiryWindowDays,
		loc:            cfg.Location(),
		now:            time.Now,
	}
}

// DefaultPolicy returns the documented defaults: 0.3 / 1.0 stock ratios,
// 30 day expiry window with the first 30% of it critical
func DefaultPolicy() *Policy {
	return NewPolicy(config.AlertsConfig{
		StockCriticalRatio:     0.3,
		StockWarningRatio:      1.0,
		ExpiryCriticalFraction: 0.3,
		ExpiryWindowDays:       30,
		Timezone:               "UTC",
	})
}

// WithClock replaces the time source
func (p *Policy) WithClock(now func() time.Time) *Policy {
	p.now = now
	return p
}

// Now returns the current instant in UTC
func (p *Policy) Now() time.Time {
	return p.now().UTC()
}

// Today returns the current calendar day in the policy's time zone
func (p *Policy) Today() repository.Date {
	return repository.NewDate(p.now().In(p.loc))
}

// WindowDias is the expiry horizon stamped on alerts
func (p *Policy) WindowDias() int {
	return p.windowDias
}

// DaysUntil returns the calendar days from today to d, negative once expired
func (p *Policy) DaysUntil(d repository.Date) int {
	return d.DaysSince(p.Today())
}

// StockSeverity classifies stock against its minimum. ok is false when the
// level is healthy and any open alert should resolve.
func (p *Policy) StockSeverity(stockActual, stockMinimo int) (sev repository.Severity, ok bool) {
	denominator := stockMinimo
	if denominator < 1 {
		denominator = 1
	}
	ratio := float64(stockActual) / float64(denominator)

	switch {
	case ratio <= p.stockCritical:
		return repository.SeverityCritical, true
	case ratio <= p.stockWarning:
		return repository.SeverityWarning, true
	}
	return "", false
}

// ExpirySeverity classifies a batch by its remaining days within the window
func (p *Policy) ExpirySeverity(diasRestantes int) (sev repository.Severity, ok bool) {
	return p.ExpirySeverityFor(diasRestantes, p.windowDias)
}

// ExpirySeverityFor classifies against an explicit window
func (p *Policy) ExpirySeverityFor(diasRestantes, windowDias int) (repository.Severity, bool) {
	switch {
	case diasRestantes < 0:
		return repository.SeverityCritical, true
	case diasRestantes <= p.criticalDays(windowDias):
		return repository.SeverityCritical, true
	case diasRestantes <= windowDias:
		return repository.SeverityWarning, true
	}
	return "", false
}

func (p *Policy) criticalDays(windowDias int) int {
	return int(math.Floor(float64(windowDias)*p.expiryCritical + 1e-9))
}
