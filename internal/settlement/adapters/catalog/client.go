package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/kernel"
	orders "marketplace-settlement/internal/orders/domain"
)

// Client reads products from the catalog service over HTTP.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithToken sets the bearer token sent to the catalog.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient constructs a catalog client.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("catalog client: empty base url")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type productResponse struct {
	ID           string          `json:"id"`
	VendorID     string          `json:"vendor_id"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	StockOnHand  int             `json:"stock_on_hand"`
	VendorActive bool            `json:"vendor_active"`
}

// GetProduct implements orders.Catalog. Unknown products wrap kernel.ErrNotFound.
func (c *Client) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	if strings.TrimSpace(id) == "" {
		return orders.Product{}, fmt.Errorf("catalog client: empty product id: %w", kernel.ErrNotFound)
	}
	var resp productResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/products/"+url.PathEscape(id), nil, &resp); err != nil {
		return orders.Product{}, fmt.Errorf("catalog client: product %s: %w", id, err)
	}
	if resp.ID == "" {
		resp.ID = id
	}
	return orders.Product{
		ID:           resp.ID,
		VendorID:     resp.VendorID,
		UnitPrice:    kernel.Cents(resp.UnitPrice),
		StockOnHand:  resp.StockOnHand,
		VendorActive: resp.VendorActive,
	}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return kernel.ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
