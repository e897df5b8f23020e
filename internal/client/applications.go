package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"resumatch/internal/errors"
	"resumatch/internal/types"
)

// ListApplications returns tracked applications matching filter
func (c *Client) ListApplications(ctx context.Context, filter types.ApplicationFilter) ([]types.Application, error) {
	query := url.Values{}
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, invalidStatusError(filter.Status)
		}
		query.Set("status", string(filter.Status))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query.Set("search", search)
	}

	var list []types.Application
	if err := c.doJSON(ctx, http.MethodGet, "/api/applications", query, nil, &list, true); err != nil {
		return nil, err
	}
	return list, nil
}

// GetApplication fetches one application
func (c *Client) GetApplication(ctx context.Context, id int64) (*types.Application, error) {
	var app types.Application
	if err := c.doJSON(ctx, http.MethodGet, applicationPath(id), nil, nil, &app, true); err != nil {
		return nil, err
	}
	return &app, nil
}

// CreateApplication stores a new application. Status defaults to saved.
func (c *Client) CreateApplication(ctx context.Context, app types.Application) (*types.Application, error) {
	app.Company = strings.TrimSpace(app.Company)
	app.Position = strings.TrimSpace(app.Position)
	if app.Company == "" || app.Position == "" {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "company and position are required", nil)
	}
	if app.Status == "" {
		app.Status = types.StatusSaved
	}
	if !app.Status.Valid() {
		return nil, invalidStatusError(app.Status)
	}
	app.ID = 0

	var created types.Application
	if err := c.doJSON(ctx, http.MethodPost, "/api/applications", nil, app, &created, true); err != nil {
		return nil, err
	}
	c.logger.Info("Application created", "id", created.ID, "company", created.Company)
	return &created, nil
}

// UpdateApplication changes the non-nil fields of update
func (c *Client) UpdateApplication(ctx context.Context, id int64, update types.ApplicationUpdate) (*types.Application, error) {
	if update.Status != nil && !update.Status.Valid() {
		return nil, invalidStatusError(*update.Status)
	}

	var updated types.Application
	if err := c.doJSON(ctx, http.MethodPatch, applicationPath(id), nil, update, &updated, true); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteApplication removes an application
func (c *Client) DeleteApplication(ctx context.Context, id int64) error {
	if err := c.doJSON(ctx, http.MethodDelete, applicationPath(id), nil, nil, nil, true); err != nil {
		return err
	}
	c.logger.Info("Application deleted", "id", id)
	return nil
}

// ApplicationStats returns pipeline statistics
func (c *Client) ApplicationStats(ctx context.Context) (*types.ApplicationStats, error) {
	var stats types.ApplicationStats
	if err := c.doJSON(ctx, http.MethodGet, "/api/applications/stats", nil, nil, &stats, true); err != nil {
		return nil, err
	}
	if stats.ByStatus == nil {
		stats.ByStatus = map[types.ApplicationStatus]int{}
	}
	return &stats, nil
}

func applicationPath(id int64) string {
	return "/api/applications/" + strconv.FormatInt(id, 10)
}

func invalidStatusError(status types.ApplicationStatus) error {
	names := make([]string, len(types.ApplicationStatuses))
	for i, s := range types.ApplicationStatuses {
		names[i] = string(s)
	}
	return errors.NewValidationError(errors.ErrCodeInvalidRequest,
		fmt.Sprintf("unknown application status %q (valid: %s)", status, strings.Join(names, ", ")), nil)
}
