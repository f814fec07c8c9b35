package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/polisbay/quoteflow/internal/models"
)

// GetProfile fetches the authenticated customer's profile.
func (c *Client) GetProfile(ctx context.Context, accessToken string) (*models.CustomerProfile, error) {
	var profile models.CustomerProfile
	if err := c.doJSON(ctx, http.MethodGet, "/customers/me", accessToken, nil, &profile); err != nil {
		return nil, fmt.Errorf("profile fetch failed: %w", err)
	}
	slog.Debug("backend profile fetched", "complete", profile.IsComplete())
	return &profile, nil
}

// UpdateProfile performs a partial profile update and returns the resulting
// profile. Only fields present in the update are serialized, so blanks never
// overwrite data already on the server. An empty update sends nothing and
// returns (nil, nil).
func (c *Client) UpdateProfile(ctx context.Context, accessToken, customerID string, update models.ProfileUpdate) (*models.CustomerProfile, error) {
	if update.IsEmpty() {
		slog.Debug("backend profile update skipped, no fields to send", "customerID", customerID)
		return nil, nil
	}
	path := fmt.Sprintf("/customers/%s", customerID)
	var profile models.CustomerProfile
	if err := c.doJSON(ctx, http.MethodPut, path, accessToken, update, &profile); err != nil {
		return nil, fmt.Errorf("profile update failed: %w", err)
	}
	slog.Info("backend profile updated", "customerID", customerID)
	return &profile, nil
}
