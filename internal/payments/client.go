package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/keyforge/keyforge/internal/config"
	"github.com/keyforge/keyforge/pkg/logger"
	"github.com/keyforge/keyforge/pkg/metrics"
)

var (
	ErrInvalidAmount = errors.New("invalid payment amount")
	ErrEmptyCart     = errors.New("order items are required")
	ErrHashRequired  = errors.New("transaction_hash is required")
	// ErrUpstream means every status endpoint variant failed.
	ErrUpstream = errors.New("payment gateway unavailable")
)

// Client talks to the TriboPay public API. It authenticates with an api_token
// query parameter and always charges through PIX.
type Client struct {
	baseURL     string
	apiToken    string
	offerHash   string
	postbackURL string
	httpClient  *http.Client
}

func NewClient(cfg config.TriboPayConfig) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiToken:    cfg.APIToken,
		offerHash:   cfg.OfferHash,
		postbackURL: cfg.PostbackURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateTransaction opens a PIX transaction for the request and returns the
// normalized result with a guaranteed QR image when a copy-paste code exists.
func (c *Client) CreateTransaction(ctx context.Context, req CreateRequest) (*Transaction, error) {
	cents := toCents(req.Amount)
	if cents <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}

	payload := c.buildPayload(req, cents)

	endpoint := fmt.Sprintf("%s/transactions?api_token=%s", c.baseURL, url.QueryEscape(c.apiToken))
	data, status, err := c.doJSON(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues("create", "error").Inc()
		return nil, err
	}
	if status < 200 || status >= 300 {
		metrics.GatewayRequests.WithLabelValues("create", "rejected").Inc()
		return nil, &GatewayError{StatusCode: status, Message: gatewayMessage(data, status)}
	}
	metrics.GatewayRequests.WithLabelValues("create", "ok").Inc()

	tx := normalizeTransaction(data)
	c.ensureQRImage(&tx)
	if tx.Amount == 0 {
		tx.Amount = float64(cents)
	}
	return &tx, nil
}

// TransactionStatus looks a transaction up, trying the path-style endpoint
// first and the query-parameter variant second. The first 2xx answer wins.
func (c *Client) TransactionStatus(ctx context.Context, hash string) (*Transaction, error) {
	if hash == "" {
		return nil, ErrHashRequired
	}
	endpoints := []string{
		fmt.Sprintf("%s/transactions/%s?api_token=%s",
			c.baseURL, url.PathEscape(hash), url.QueryEscape(c.apiToken)),
		fmt.Sprintf("%s/transactions?api_token=%s&transaction_hash=%s",
			c.baseURL, url.QueryEscape(c.apiToken), url.QueryEscape(hash)),
	}
	for _, endpoint := range endpoints {
		data, status, err := c.doJSON(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			logger.Warnf("gateway status request failed: %v", err)
			continue
		}
		if status < 200 || status >= 300 {
			continue
		}
		tx := normalizeTransaction(data)
		if tx.Hash == "" {
			tx.Hash = hash
		}
		c.ensureQRImage(&tx)
		metrics.GatewayRequests.WithLabelValues("status", "ok").Inc()
		return &tx, nil
	}
	metrics.GatewayRequests.WithLabelValues("status", "error").Inc()
	return nil, ErrUpstream
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload any) (map[string]any, int, error) {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	data := map[string]any{}
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		// Non-JSON bodies still carry the status code.
		data = map[string]any{}
	}
	return data, res.StatusCode, nil
}

func (c *Client) buildPayload(req CreateRequest, cents int64) map[string]any {
	cart := make([]map[string]any, 0, len(req.Items))
	for _, item := range req.Items {
		hash := item.ProductHash
		if hash == "" {
			hash = item.ID
		}
		if hash == "" {
			hash = fmt.Sprintf("prod_%d", time.Now().UnixMilli())
		}
		title := item.Title
		if title == "" {
			title = "Produto"
		}
		price := int64(item.UnitPrice * 100)
		if price <= 0 {
			price = cents
		}
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		operation := item.OperationType
		if operation == 0 {
			operation = 1
		}
		cart = append(cart, map[string]any{
			"product_hash":   hash,
			"title":          title,
			"cover":          item.Cover,
			"price":          price,
			"quantity":       quantity,
			"operation_type": operation,
			"tangible":       item.Tangible,
		})
	}

	utm := req.UTMQuery
	if utm == nil {
		utm = map[string]string{}
	}
	src := utm["src"]
	if src == "" {
		src = utm["utm_source"]
	}
	if src == "" {
		src = req.External
	}

	payload := map[string]any{
		"amount":             cents,
		"offer_hash":         c.offerHash,
		"payment_method":     "pix",
		"customer":           buildCustomer(req),
		"cart":               cart,
		"installments":       1,
		"expire_in_days":     1,
		"transaction_origin": "api",
		"tracking": map[string]any{
			"src":          src,
			"utm_source":   utm["utm_source"],
			"utm_medium":   utm["utm_medium"],
			"utm_campaign": utm["utm_campaign"],
			"utm_term":     utm["utm_term"],
			"utm_content":  utm["utm_content"],
		},
	}
	if c.postbackURL != "" {
		payload["postback_url"] = c.postbackURL
	}
	return payload
}

func buildCustomer(req CreateRequest) map[string]any {
	phone := onlyDigits(req.Phone)
	if !strings.HasPrefix(phone, "55") {
		phone = "55" + phone
	}
	cpf := onlyDigits(req.CPF)
	if cpf == "" {
		cpf = randomCPF()
	}
	customer := map[string]any{
		"name":         req.Name,
		"email":        req.Email,
		"phone_number": phone,
		"document":     cpf,
	}
	optional := map[string]string{
		"street_name":  req.StreetName,
		"number":       req.Number,
		"complement":   req.Complement,
		"neighborhood": req.Neighborhood,
		"city":         req.City,
		"state":        req.State,
		"zip_code":     req.ZipCode,
	}
	for k, v := range optional {
		if v != "" {
			customer[k] = v
		}
	}
	return customer
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func toCents(amount float64) int64 {
	if amount <= 0 {
		return 0
	}
	return int64(amount*100 + 0.5)
}
