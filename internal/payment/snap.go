package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client creates Snap transactions against the Midtrans API.
type Client struct {
	BaseURL   string
	ServerKey string
	HTTP      *http.Client
}

func NewClient(baseURL, serverKey string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ServerKey: serverKey,
		HTTP:      &http.Client{Timeout: 15 * time.Second},
	}
}

type snapRequest struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount int    `json:"gross_amount"`
	} `json:"transaction_details"`
}

type snapResponse struct {
	Token        string   `json:"token"`
	RedirectURL  string   `json:"redirect_url"`
	ErrorMessage []string `json:"error_messages,omitempty"`
}

// CreateTransaction registers the order with Snap and returns the payment token.
func (c *Client) CreateTransaction(ctx context.Context, orderID string, grossAmount int) (string, error) {
	var body snapRequest
	body.TransactionDetails.OrderID = orderID
	body.TransactionDetails.GrossAmount = grossAmount

	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/snap/v1/transactions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.ServerKey+":")))

	res, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	var out snapResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("snap transaction failed: status %d %v", res.StatusCode, out.ErrorMessage)
	}
	return out.Token, nil
}
