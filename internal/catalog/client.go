// Package catalog resolves a product unit's category through the product
// service, with an optional Redis cache in front.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/utafrali/MarketGo/pkg/errors"
	"github.com/utafrali/MarketGo/pkg/httpclient"
)

// HTTPDoer is satisfied by httpclient.Client and httpclient.CircuitBreakerClient.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// CircuitOpenFallback turns a rejected call into a retryable error.
func CircuitOpenFallback(_ context.Context, _ error) (*http.Response, error) {
	return nil, apperrors.ServiceUnavailable("product service is temporarily unavailable")
}

// HTTPLookup asks the product service for a unit's category.
type HTTPLookup struct {
	client  HTTPDoer
	baseURL string
	logger  *slog.Logger
}

func NewHTTPLookup(client HTTPDoer, baseURL string, logger *slog.Logger) *HTTPLookup {
	return &HTTPLookup{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

type productResponse struct {
	Data struct {
		ID         string `json:"id"`
		CategoryID string `json:"category_id"`
	} `json:"data"`
}

// CategoryOf returns "" with no error for a product the service does not know.
func (l *HTTPLookup) CategoryOf(ctx context.Context, productUnitID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		l.baseURL+"/api/v1/products/"+url.PathEscape(productUnitID), nil)
	if err != nil {
		return "", fmt.Errorf("create product request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(ctx, req)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return "", err
		}
		return "", fmt.Errorf("call product service: %w", apperrors.ServiceUnavailable(err.Error()))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		l.logger.DebugContext(ctx, "product unknown to catalog", slog.String("product_unit_id", productUnitID))
		return "", nil
	case resp.StatusCode != http.StatusOK:
		return "", httpclient.ParseResponseError(resp, "product")
	}

	var body productResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode product response: %w", err)
	}
	return body.Data.CategoryID, nil
}
