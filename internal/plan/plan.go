// Package plan enforces organization plan limits. Billing itself lives
// elsewhere; this is only the capacity check consulted before any storage or
// queue resource is allocated.
package plan

import (
	"fmt"

	"github.com/reelworks/vod-pipeline/pkg/models"
)

// Limits describes what an organization's plan allows.
type Limits struct {
	MaxStorageBytes    int64
	MaxDurationMinutes int64
}

// Checker resolves an organization's limits. All organizations currently
// share the deployment-wide default plan; per-org overrides slot in here.
type Checker struct {
	defaults Limits
}

// NewChecker creates a Checker with the given default limits.
func NewChecker(defaults Limits) *Checker {
	return &Checker{defaults: defaults}
}

// LimitsFor returns the plan limits for an organization.
func (c *Checker) LimitsFor(organizationID string) Limits {
	return c.defaults
}

// CheckUpload rejects an upload whose declared size or duration would exceed
// the organization's plan. Zero values mean "not declared" and pass; the
// multipart complete step re-checks with measured sizes.
func (c *Checker) CheckUpload(organizationID string, sizeBytes, durationSeconds int64) error {
	limits := c.LimitsFor(organizationID)

	if limits.MaxStorageBytes > 0 && sizeBytes > limits.MaxStorageBytes {
		return fmt.Errorf("%w: %d bytes exceeds plan storage limit of %d bytes",
			models.ErrCapacityExceeded, sizeBytes, limits.MaxStorageBytes)
	}

	if limits.MaxDurationMinutes > 0 && durationSeconds > limits.MaxDurationMinutes*60 {
		return fmt.Errorf("%w: %d seconds exceeds plan duration limit of %d minutes",
			models.ErrCapacityExceeded, durationSeconds, limits.MaxDurationMinutes)
	}

	return nil
}
