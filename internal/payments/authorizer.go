// Package payments wraps the external payment gateway behind a small
// authorize-only interface. Checkout calls it exactly once per attempt,
// outside any database transaction.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brightline-dev/storefront-backend/pkg/config"
	"github.com/brightline-dev/storefront-backend/pkg/enums"
	"github.com/brightline-dev/storefront-backend/pkg/errors"
)

const ReasonDeclined = "PAYMENT_DECLINED"

// AuthorizeInput is the charge request sent to the gateway.
type AuthorizeInput struct {
	AmountCents    int64          `json:"amount_cents"`
	Currency       enums.Currency `json:"currency"`
	IdempotencyKey string         `json:"idempotency_key"`
}

// Authorization is the gateway's accepted-charge handle.
type Authorization struct {
	PaymentRef string `json:"payment_ref"`
}

// Authorizer authorizes a charge against the payment gateway. A decline
// comes back as a state-conflict error with the declined reason; transport
// and gateway failures come back as dependency errors.
type Authorizer interface {
	Authorize(ctx context.Context, input AuthorizeInput) (*Authorization, error)
}

// HTTPAuthorizer talks to the gateway's REST authorize endpoint.
type HTTPAuthorizer struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPAuthorizer builds the gateway client from configuration.
func NewHTTPAuthorizer(cfg config.PaymentConfig) (*HTTPAuthorizer, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("payment base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAuthorizer{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type gatewayResponse struct {
	PaymentRef string `json:"payment_ref"`
	Declined   bool   `json:"declined"`
	Message    string `json:"message"`
}

func (a *HTTPAuthorizer) Authorize(ctx context.Context, input AuthorizeInput) (*Authorization, error) {
	if input.AmountCents < 0 {
		return nil, errors.New(errors.CodeValidation, "authorize amount cannot be negative")
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "encoding authorize request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/authorizations", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "building authorize request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Idempotency-Key", input.IdempotencyKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "payment gateway unreachable")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "reading gateway response")
	}

	var decoded gatewayResponse
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, errors.Wrap(errors.CodeDependency, err, "decoding gateway response")
		}
	}

	switch {
	case resp.StatusCode == http.StatusOK && !decoded.Declined:
		if decoded.PaymentRef == "" {
			return nil, errors.New(errors.CodeDependency, "gateway returned no payment ref")
		}
		return &Authorization{PaymentRef: decoded.PaymentRef}, nil
	case resp.StatusCode == http.StatusPaymentRequired || decoded.Declined:
		return nil, errors.New(errors.CodeStateConflict, "payment declined").
			WithReason(ReasonDeclined, map[string]any{"message": decoded.Message})
	default:
		return nil, errors.New(errors.CodeDependency,
			fmt.Sprintf("gateway returned status %d", resp.StatusCode))
	}
}

// StubAuthorizer approves everything; used in dev and tests.
type StubAuthorizer struct{}

func (StubAuthorizer) Authorize(ctx context.Context, input AuthorizeInput) (*Authorization, error) {
	return &Authorization{PaymentRef: "stub-" + input.IdempotencyKey}, nil
}
