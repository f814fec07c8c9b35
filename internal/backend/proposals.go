package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/polisbay/quoteflow/internal/models"
)

// proposalCreateResponse is the backend's reply to a property registration:
// one proposal per coverage tier.
type proposalCreateResponse struct {
	ProposalIDs []string `json:"proposalIds"`
}

// CreateProposals registers a property and returns the identifiers of the
// proposals created for it, one per coverage tier. The property payload is
// passed through opaquely; its shape belongs to the registration step.
func (c *Client) CreateProposals(ctx context.Context, accessToken string, property json.RawMessage) ([]string, error) {
	var result proposalCreateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/proposals", accessToken, property, &result); err != nil {
		return nil, fmt.Errorf("proposal creation failed: %w", err)
	}
	if len(result.ProposalIDs) == 0 {
		return nil, fmt.Errorf("proposal creation returned no identifiers")
	}
	slog.Info("backend proposals created", "count", len(result.ProposalIDs))
	return result.ProposalIDs, nil
}

// GetProposal fetches a proposal and its current quotes.
func (c *Client) GetProposal(ctx context.Context, accessToken, proposalID string) (*models.Proposal, error) {
	var proposal models.Proposal
	path := fmt.Sprintf("/proposals/%s", proposalID)
	if err := c.doJSON(ctx, http.MethodGet, path, accessToken, nil, &proposal); err != nil {
		return nil, fmt.Errorf("proposal fetch failed for %s: %w", proposalID, err)
	}
	if proposal.ID == "" {
		proposal.ID = proposalID
	}
	slog.Debug("backend proposal fetched", "proposalID", proposalID, "quotes", len(proposal.Products))
	return &proposal, nil
}

// Purchase commits a purchase against the proposal service and returns the
// resulting policy identifier.
func (c *Client) Purchase(ctx context.Context, accessToken string, req models.PurchaseRequest) (*models.PurchaseResult, error) {
	var result models.PurchaseResult
	path := fmt.Sprintf("/proposals/%s/purchase", req.ProposalID)
	if err := c.doJSON(ctx, http.MethodPost, path, accessToken, req, &result); err != nil {
		return nil, fmt.Errorf("purchase commit failed: %w", err)
	}
	if result.PolicyID == "" {
		return nil, fmt.Errorf("purchase commit returned no policy identifier")
	}
	slog.Info("backend purchase committed", "proposalID", req.ProposalID, "policyID", result.PolicyID)
	return &result, nil
}
