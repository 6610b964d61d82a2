package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"dwellops/internal/config"
	"dwellops/internal/types"
)

// MailGatewayClient transmits notifications through the platform mail
// gateway's message API. It classifies every outcome as delivered, a
// retryable failure, or a permanent failure; the caller never needs to
// inspect HTTP details.
//
// Classification:
//   - 202 Accepted        -> delivered (provider ID from X-Message-Id)
//   - 403                 -> permanent (recipient suppressed or blocked)
//   - 400/404/422         -> permanent (malformed request, unknown template)
//   - 429, 5xx, network   -> retryable
//   - circuit breaker open -> retryable
type MailGatewayClient struct {
	base        *BaseClient
	baseURL     string
	apiKey      string
	fromAddress string
	fromName    string
	sendTimeout time.Duration
	logger      *slog.Logger
}

// NewMailGatewayClient creates a MailGatewayClient from the mail
// configuration. Transport retries are disabled: the notification queue
// owns retry scheduling, so one Send maps to at most one delivery on the
// wire per breaker-admitted attempt.
func NewMailGatewayClient(cfg config.MailConfig, logger *slog.Logger) *MailGatewayClient {
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		&http.Client{Timeout: cfg.SendTimeout},
		"mail-gateway",
		RetryPolicy{
			MaxRetries: 0,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Dwellops/1.0",
	)

	return &MailGatewayClient{
		base:        base,
		baseURL:     strings.TrimSuffix(cfg.GatewayURL, "/"),
		apiKey:      cfg.APIKey,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		sendTimeout: cfg.SendTimeout,
		logger:      logger,
	}
}

// NewMailGatewayClientWithBase creates a MailGatewayClient with a
// pre-configured BaseClient. Useful for tests that need to control the
// breaker or retry policy.
func NewMailGatewayClientWithBase(base *BaseClient, cfg config.MailConfig, logger *slog.Logger) *MailGatewayClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailGatewayClient{
		base:        base,
		baseURL:     strings.TrimSuffix(cfg.GatewayURL, "/"),
		apiKey:      cfg.APIKey,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		sendTimeout: cfg.SendTimeout,
		logger:      logger,
	}
}

// gatewayAddress is an address element in the message API payload.
type gatewayAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// gatewayMessagePayload is the POST /v1/messages request body.
type gatewayMessagePayload struct {
	To       gatewayAddress `json:"to"`
	From     gatewayAddress `json:"from"`
	Template string         `json:"template"`
	Data     types.Payload  `json:"data,omitempty"`
	// reference_id correlates gateway events back to the notification row.
	ReferenceID string `json:"reference_id,omitempty"`
}

// gatewayErrorResponse is the JSON error body returned by the gateway.
type gatewayErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Send transmits one notification and classifies the outcome. The call is
// bounded by the configured send timeout regardless of the caller's
// context.
func (c *MailGatewayClient) Send(ctx context.Context, n *types.Notification) types.DispatchResult {
	ctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	payload := gatewayMessagePayload{
		To:          gatewayAddress{Email: n.Recipient},
		From:        gatewayAddress{Email: c.fromAddress, Name: c.fromName},
		Template:    string(n.TemplateKind),
		Data:        n.Payload,
		ReferenceID: n.ID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return types.DispatchResult{
			Status: types.DispatchPermanentFailure,
			Reason: fmt.Sprintf("failed to marshal message payload: %v", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return types.DispatchResult{
			Status: types.DispatchPermanentFailure,
			Reason: fmt.Sprintf("failed to build message request: %v", err),
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.base.Do(req)
	if err != nil {
		// BaseClient surfaces breaker-open, rate-limit, 5xx, and network
		// failures as errors; all of them are worth another attempt later.
		return types.DispatchResult{
			Status: types.DispatchRetryableFailure,
			Reason: dispatchReason(err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return types.DispatchResult{
			Status:        types.DispatchDelivered,
			ProviderMsgID: resp.Header.Get("X-Message-Id"),
		}
	}

	res := c.classifyErrorResponse(resp)
	if res.Status == types.DispatchPermanentFailure {
		c.logger.WarnContext(ctx, "mail gateway permanently rejected message",
			"notification_id", n.ID,
			"status_code", resp.StatusCode,
			"reason", res.Reason,
		)
	}
	return res
}

// classifyErrorResponse maps a non-202 gateway response to a dispatch
// outcome.
func (c *MailGatewayClient) classifyErrorResponse(resp *http.Response) types.DispatchResult {
	msg := readGatewayError(resp)

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return types.DispatchResult{
			Status: types.DispatchPermanentFailure,
			Reason: fmt.Sprintf("recipient blocked by gateway: %s", msg),
		}
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return types.DispatchResult{
			Status: types.DispatchPermanentFailure,
			Reason: fmt.Sprintf("gateway rejected message (%d): %s", resp.StatusCode, msg),
		}
	default:
		// Anything else that slipped past BaseClient is treated as
		// transient.
		return types.DispatchResult{
			Status: types.DispatchRetryableFailure,
			Reason: fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, msg),
		}
	}
}

// readGatewayError extracts the error message from a gateway error body,
// falling back to the raw body when the JSON shape is unexpected.
func readGatewayError(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(body) == 0 {
		return "no response body"
	}

	var ge gatewayErrorResponse
	if jsonErr := json.Unmarshal(body, &ge); jsonErr == nil && ge.Error.Message != "" {
		if ge.Error.Code != "" {
			return ge.Error.Code + ": " + ge.Error.Message
		}
		return ge.Error.Message
	}
	return string(body)
}

// dispatchReason flattens a BaseClient error into a last_error string.
func dispatchReason(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return string(appErr.Code) + ": " + appErr.Message
	}
	return err.Error()
}
