package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tillsync/internal/config"
	"tillsync/internal/models"

	"github.com/rs/zerolog"
)

// permanentPaymentCodes never succeed on retry; the order goes straight to
// failed so staff can change tender or delete it.
var permanentPaymentCodes = map[string]bool{
	"product_not_free":                   true,
	"insufficient_remaining_redemptions": true,
}

// Result is a definitive acceptance from the backend.
type Result struct {
	ServerID string
}

// Submitter submits one order to the backend. It must be idempotent by the
// order's LocalID so that retrying an unknown outcome cannot duplicate it.
type Submitter interface {
	Submit(ctx context.Context, order models.QueuedOrder) (Result, error)
}

// Client submits orders over the venue backend's HTTP API. Submission is
// two-step: create the order, then confirm its payment; each step carries
// its own idempotency key derived from the order's LocalID.
type Client struct {
	baseURL  string
	token    string
	deviceID string
	http     *http.Client
	logger   *zerolog.Logger
}

func NewClient(cfg config.BackendConfig, deviceID string, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		token:    cfg.Token,
		deviceID: deviceID,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
	}
}

type orderRequest struct {
	Items      []models.OrderItem `json:"items"`
	TotalCents int64              `json:"total_cents"`
	CreatedAt  time.Time          `json:"created_at"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

type paymentRequest struct {
	Method  models.PaymentMethod `json:"method"`
	Channel string               `json:"channel"`
	Club100 *club100Payload      `json:"club100,omitempty"`
}

type club100Payload struct {
	MemberID     string `json:"member_id"`
	MemberName   string `json:"member_name"`
	FreeQuantity int    `json:"free_quantity"`
}

type paymentResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (c *Client) Submit(ctx context.Context, order models.QueuedOrder) (Result, error) {
	serverID := order.ServerID
	if serverID == "" {
		id, err := c.createOrder(ctx, order)
		if err != nil {
			return Result{}, err
		}
		serverID = id
	}

	if err := c.confirmPayment(ctx, serverID, order); err != nil {
		// Keep the server id so a payment retry does not re-create the order.
		return Result{ServerID: serverID}, err
	}

	return Result{ServerID: serverID}, nil
}

func (c *Client) createOrder(ctx context.Context, order models.QueuedOrder) (string, error) {
	body := orderRequest{Items: order.Items, TotalCents: order.TotalCents, CreatedAt: order.CreatedAt}

	var resp orderResponse
	status, err := c.post(ctx, "/api/v1/orders", order.LocalID, body, &resp)
	if err != nil {
		return "", err
	}

	if status >= 500 {
		// Server-side outcome unknown; the idempotency key makes retry safe.
		return "", &SubmitError{Kind: KindTransport, Code: resp.Code, Message: nonEmpty(resp.Detail, "backend unavailable")}
	}
	if status >= 400 || resp.ID == "" {
		return "", &SubmitError{Kind: KindRejected, Code: nonEmpty(resp.Code, "order_rejected"), Message: nonEmpty(resp.Detail, "order rejected")}
	}
	return resp.ID, nil
}

func (c *Client) confirmPayment(ctx context.Context, serverID string, order models.QueuedOrder) error {
	body := paymentRequest{Method: order.PaymentMethod, Channel: "pos"}
	if order.GratisInfo != nil && order.GratisInfo.Type == models.Gratis100Club {
		free := order.GratisInfo.FreeQuantity
		if free == 0 {
			free = 1
		}
		body.Club100 = &club100Payload{
			MemberID:     order.GratisInfo.MemberID,
			MemberName:   order.GratisInfo.MemberName,
			FreeQuantity: free,
		}
	}

	var resp paymentResponse
	path := fmt.Sprintf("/api/v1/orders/%s/payment", serverID)
	status, err := c.post(ctx, path, order.LocalID+":pay", body, &resp)
	if err != nil {
		return err
	}

	if status >= 500 {
		return &SubmitError{Kind: KindTransport, Code: resp.Code, Message: nonEmpty(resp.Message, "backend unavailable")}
	}
	if status >= 400 {
		code := nonEmpty(resp.Code, "payment_failed")
		return &SubmitError{
			Kind:      KindPayment,
			Code:      code,
			Message:   nonEmpty(resp.Message, nonEmpty(resp.Detail, "payment failed")),
			Permanent: permanentPaymentCodes[code],
		}
	}
	return nil
}

// post issues a JSON POST with the given idempotency key and decodes the
// response body into out. The status code is returned for classification;
// transport-level failures come back as *SubmitError of KindTransport.
func (c *Client) post(ctx context.Context, path, idempotencyKey string, body, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Idempotency-Key", idempotencyKey)
	req.Header.Set("X-Device-ID", c.deviceID)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &SubmitError{Kind: KindTransport, Message: err.Error()}
	}
	defer resp.Body.Close()

	// A body that fails to decode on an error status is still classifiable
	// by status alone.
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && resp.StatusCode < 400 {
		return 0, &SubmitError{Kind: KindTransport, Message: fmt.Sprintf("decode response: %v", err)}
	}

	c.logger.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("backend request")
	return resp.StatusCode, nil
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
