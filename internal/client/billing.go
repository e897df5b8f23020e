package client

import (
	"context"
	"net/http"
	"strings"
	"time"

	"resumatch/internal/errors"
	"resumatch/internal/types"

	"golang.org/x/sync/errgroup"
)

// recentAnalysesLimit caps the analyses shown on the dashboard
const recentAnalysesLimit = 5

// BillingStatus returns the subscription state as reported by the backend
func (c *Client) BillingStatus(ctx context.Context) (*types.BillingStatus, error) {
	var status types.BillingStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/billing/status", nil, nil, &status, true); err != nil {
		return nil, err
	}
	return &status, nil
}

// CreateCheckoutSession returns the hosted checkout URL for plan
func (c *Client) CreateCheckoutSession(ctx context.Context, plan string) (string, error) {
	plan = strings.TrimSpace(plan)
	if plan == "" {
		return "", errors.NewValidationError(errors.ErrCodeInvalidRequest, "plan is required", nil)
	}
	return c.sessionURL(ctx, "/api/billing/checkout", map[string]string{"plan": plan})
}

// CreatePortalSession returns the billing portal URL
func (c *Client) CreatePortalSession(ctx context.Context) (string, error) {
	return c.sessionURL(ctx, "/api/billing/portal", nil)
}

func (c *Client) sessionURL(ctx context.Context, path string, body any) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := c.doJSON(ctx, http.MethodPost, path, nil, body, &out, true); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", errors.NewNetworkError(errors.ErrCodeInvalidFormat, "backend returned no URL", nil).
			WithContext("path", path)
	}
	return out.URL, nil
}

// Dashboard fetches the account overview. The four backend calls run
// concurrently and the first failure cancels the rest.
func (c *Client) Dashboard(ctx context.Context) (*types.Dashboard, error) {
	var (
		user     *types.User
		stats    *types.ApplicationStats
		billing  *types.BillingStatus
		analyses []types.AnalysisSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = c.Me(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = c.ApplicationStats(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		billing, err = c.BillingStatus(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		analyses, err = c.ListAnalyses(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return buildDashboard(*user, *stats, *billing, analyses, time.Now()), nil
}

func buildDashboard(user types.User, stats types.ApplicationStats, billing types.BillingStatus, analyses []types.AnalysisSummary, now time.Time) *types.Dashboard {
	d := &types.Dashboard{
		User:    user,
		Stats:   stats,
		Billing: billing,
	}

	weekAgo := now.Add(-7 * 24 * time.Hour)
	var total float64
	for _, a := range analyses {
		total += a.MatchScore
		if !a.CreatedAt.IsZero() && a.CreatedAt.After(weekAgo) {
			d.AnalysesThisWeek++
		}
	}
	if len(analyses) > 0 {
		d.AverageScore = total / float64(len(analyses))
	}

	recent := analyses
	if len(recent) > recentAnalysesLimit {
		recent = recent[:recentAnalysesLimit]
	}
	d.RecentAnalyses = append([]types.AnalysisSummary{}, recent...)
	return d
}
