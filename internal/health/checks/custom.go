// Package checks provides the relay's health checkers.
package checks

import (
	"context"

	"github.com/bargom/leadrelay/internal/health"
)

// FuncChecker adapts a function into a health.Checker.
type FuncChecker struct {
	name     string
	fn       func(ctx context.Context) health.CheckResult
	severity health.Severity
}

// NewFuncChecker creates a warning-level checker backed by fn.
func NewFuncChecker(name string, fn func(ctx context.Context) health.CheckResult, sev ...health.Severity) *FuncChecker {
	c := &FuncChecker{name: name, fn: fn, severity: health.SeverityWarning}
	if len(sev) > 0 {
		c.severity = sev[0]
	}
	return c
}

func (c *FuncChecker) Name() string { return c.name }

func (c *FuncChecker) Severity() health.Severity { return c.severity }

func (c *FuncChecker) Check(ctx context.Context) health.CheckResult { return c.fn(ctx) }
