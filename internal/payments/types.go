package payments

import "fmt"

// PIX carries the payable PIX data returned to the frontend. The image is
// raw base64 PNG without a data-URL prefix.
type PIX struct {
	QRCodeText        string `json:"qrCodeText,omitempty"`
	QRCodeImageBase64 string `json:"qrCodeImageBase64,omitempty"`
	ExpiresAt         string `json:"expiresAt,omitempty"`
}

// Transaction is the normalized gateway transaction. Only these fields ever
// reach the frontend; raw gateway payloads stay server-side.
type Transaction struct {
	Hash          string  `json:"transaction_hash"`
	Status        string  `json:"status"`
	Amount        float64 `json:"amount,omitempty"`
	PaymentMethod string  `json:"payment_method"`
	PIX           PIX     `json:"pix"`
	PaidAt        string  `json:"paid_at,omitempty"`
}

// Item is one cart entry of a payment request.
type Item struct {
	ID            string  `json:"id"`
	ProductHash   string  `json:"product_hash"`
	Title         string  `json:"title"`
	Cover         string  `json:"cover"`
	UnitPrice     float64 `json:"unitPrice"`
	Quantity      int     `json:"quantity"`
	OperationType int     `json:"operation_type"`
	Tangible      bool    `json:"tangible"`
}

// CreateRequest is the payment-creation input as received from the frontend.
type CreateRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Phone    string  `json:"phone"`
	CPF      string  `json:"cpf"`
	Amount   float64 `json:"amount"`
	Items    []Item  `json:"items"`
	Plan     string  `json:"plan"`
	External string  `json:"externalId"`

	StreetName   string `json:"street_name"`
	Number       string `json:"number"`
	Complement   string `json:"complement"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zip_code"`

	UTMQuery map[string]string `json:"utmQuery"`
}

// GatewayError is a non-2xx answer from the payment gateway. The message is
// the gateway's own error text, already stripped of personal data.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway returned %d: %s", e.StatusCode, e.Message)
}
