package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/techserve/support-api/internal/config"
	"github.com/techserve/support-api/internal/model"
)

// testKeySentinel marks a gateway API key as a test credential. With such a
// key the client never contacts the gateway: it fabricates a success redirect
// so checkout can be exercised end to end without real payment credentials.
const testKeySentinel = "_test_"

type Session struct {
	SessionID string
	URL       string
}

type Client struct {
	cfg        config.PaymentConfig
	httpClient *http.Client
}

func NewClient(cfg config.PaymentConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) TestMode() bool {
	return strings.Contains(c.cfg.APIKey, testKeySentinel)
}

type sessionRequest struct {
	Method  string `json:"method"`
	Store   string `json:"store,omitempty"`
	AuthKey string `json:"authkey"`
	Order   struct {
		CartID      string `json:"cartid"`
		Amount      string `json:"amount"`
		Currency    string `json:"currency"`
		Description string `json:"description"`
	} `json:"order"`
	Customer struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Phone   string `json:"phone"`
		Address struct {
			Line1    string `json:"line1"`
			City     string `json:"city"`
			Country  string `json:"country"`
			Postcode string `json:"postcode"`
		} `json:"address"`
	} `json:"customer"`
	Return struct {
		Authorised string `json:"authorised"`
		Declined   string `json:"declined"`
		Cancelled  string `json:"cancelled"`
	} `json:"return"`
}

type sessionResponse struct {
	Order struct {
		Ref string `json:"ref"`
		URL string `json:"url"`
	} `json:"order"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// CreateSession asks the gateway for a hosted payment page for the given
// order. The order rows must already exist; only the redirect hand-off
// depends on the gateway.
func (c *Client) CreateSession(ctx context.Context, order *model.Order) (*Session, error) {
	if c.TestMode() {
		sessionID := "test_session_" + order.ID.String()
		return &Session{
			SessionID: sessionID,
			URL:       fmt.Sprintf("%s?session_id=%s&order_id=%s", c.cfg.SuccessURL, sessionID, order.ID),
		}, nil
	}

	req := sessionRequest{Method: "create", Store: c.cfg.StoreID, AuthKey: c.cfg.APIKey}
	req.Order.CartID = order.ID.String()
	req.Order.Amount = order.TotalAmount.StringFixed(2)
	req.Order.Currency = c.cfg.Currency
	req.Order.Description = fmt.Sprintf("techserve order %s", order.ID)
	req.Customer.Name = order.CustomerName
	req.Customer.Email = order.CustomerEmail
	req.Customer.Phone = order.CustomerPhone
	req.Customer.Address.Line1 = order.Address
	req.Customer.Address.City = order.City
	req.Customer.Address.Country = order.Country
	req.Customer.Address.Postcode = order.PostalCode
	req.Return.Authorised = c.cfg.SuccessURL
	req.Return.Declined = c.cfg.CancelURL
	req.Return.Cancelled = c.cfg.CancelURL

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payment gateway error (%d): %s", resp.StatusCode, respBody)
	}

	var sessionResp sessionResponse
	if err := json.Unmarshal(respBody, &sessionResp); err != nil {
		return nil, fmt.Errorf("parse gateway response: %w", err)
	}
	if sessionResp.Error != nil {
		return nil, fmt.Errorf("payment gateway declined: %s", sessionResp.Error.Message)
	}
	if sessionResp.Order.URL == "" {
		return nil, fmt.Errorf("payment gateway returned empty redirect URL")
	}

	return &Session{SessionID: sessionResp.Order.Ref, URL: sessionResp.Order.URL}, nil
}
