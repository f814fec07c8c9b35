package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/polisbay/quoteflow/internal/models"
)

// GetCompanies fetches the company directory used for name/logo enrichment.
func (c *Client) GetCompanies(ctx context.Context) ([]models.Company, error) {
	var companies []models.Company
	if err := c.doJSON(ctx, http.MethodGet, "/companies", "", nil, &companies); err != nil {
		return nil, fmt.Errorf("company directory fetch failed: %w", err)
	}
	slog.Debug("backend company directory fetched", "count", len(companies))
	return companies, nil
}

// GetCities fetches the city lookup table.
func (c *Client) GetCities(ctx context.Context) ([]models.City, error) {
	var cities []models.City
	if err := c.doJSON(ctx, http.MethodGet, "/address/cities", "", nil, &cities); err != nil {
		return nil, fmt.Errorf("city lookup failed: %w", err)
	}
	return cities, nil
}

// GetDistricts fetches the districts of a city.
func (c *Client) GetDistricts(ctx context.Context, cityID string) ([]models.District, error) {
	var districts []models.District
	path := fmt.Sprintf("/address/districts/%s", cityID)
	if err := c.doJSON(ctx, http.MethodGet, path, "", nil, &districts); err != nil {
		return nil, fmt.Errorf("district lookup failed for city %s: %w", cityID, err)
	}
	return districts, nil
}
