package payments

import (
	"fmt"
	"strconv"
)

// The gateway spells its PIX fields a dozen different ways depending on the
// endpoint and account configuration. Normalization probes the envelope
// (data / transaction / root), the offer object and the pix object in the
// order the fields were actually observed.

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func pickCore(data map[string]any) map[string]any {
	if m := asMap(data["data"]); m != nil {
		return m
	}
	if m := asMap(data["transaction"]); m != nil {
		return m
	}
	return data
}

// firstString returns the first non-empty string value of the listed keys
// across the given maps, searched in order.
func firstString(maps []map[string]any, keys ...string) string {
	for _, m := range maps {
		if m == nil {
			continue
		}
		for _, k := range keys {
			switch v := m[k].(type) {
			case string:
				if v != "" {
					return v
				}
			case float64:
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
	}
	return ""
}

func firstNumber(maps []map[string]any, keys ...string) float64 {
	for _, m := range maps {
		if m == nil {
			continue
		}
		for _, k := range keys {
			switch v := m[k].(type) {
			case float64:
				return v
			case string:
				if n, err := strconv.ParseFloat(v, 64); err == nil {
					return n
				}
			}
		}
	}
	return 0
}

func pixObject(core, data map[string]any) map[string]any {
	for _, candidate := range []any{core["pix"], asMap(core["payment"])["pix"], data["pix"]} {
		if m := asMap(candidate); m != nil {
			return m
		}
	}
	if offer := asMap(core["offer"]); offer != nil {
		if m := asMap(offer["pix"]); m != nil {
			return m
		}
	}
	return nil
}

// normalizeTransaction flattens a raw gateway payload into a Transaction.
func normalizeTransaction(data map[string]any) Transaction {
	core := pickCore(data)
	offer := asMap(core["offer"])
	if offer == nil {
		offer = asMap(data["offer"])
	}
	pix := pixObject(core, data)

	scopes := []map[string]any{pix, offer, core, data}

	status := firstString([]map[string]any{core, data}, "status", "payment_status")
	if status == "" {
		status = firstString([]map[string]any{offer}, "payment_status")
	}
	if status == "" {
		status = "pending"
	}

	method := firstString([]map[string]any{core, data, offer}, "payment_method")
	if method == "" {
		method = "pix"
	}

	return Transaction{
		Hash: firstString([]map[string]any{core, data, offer},
			"transaction_hash", "hash"),
		Status:        status,
		Amount:        firstNumber([]map[string]any{core, data, offer}, "amount"),
		PaymentMethod: method,
		PIX: PIX{
			QRCodeText: firstString(scopes,
				"qr_code_text", "qrCodeText", "qr_code", "copy_paste",
				"pix_qr_code", "pix_qrcode"),
			QRCodeImageBase64: firstString(scopes,
				"qr_code_image_base64", "qrCodeImageBase64", "qr_code_image",
				"qr_code_base64", "qrCodeBase64"),
			ExpiresAt: firstString(scopes, "expires_at", "expiresAt"),
		},
		PaidAt: firstString([]map[string]any{core}, "paid_at", "approved_at"),
	}
}

// gatewayMessage extracts a displayable error from a gateway failure body.
func gatewayMessage(data map[string]any, status int) string {
	if msg := firstString([]map[string]any{data}, "error", "message"); msg != "" {
		return msg
	}
	return fmt.Sprintf("payment gateway request failed (%d)", status)
}
