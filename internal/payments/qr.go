package payments

import (
	"encoding/base64"
	"regexp"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/keyforge/keyforge/pkg/logger"
)

var dataURLPrefix = regexp.MustCompile(`(?i)^data:image/png;base64,`)

// stripDataURLPrefix reduces a PNG data URL to its raw base64 payload.
func stripDataURLPrefix(v string) string {
	return dataURLPrefix.ReplaceAllString(v, "")
}

// ensureQRImage guarantees the transaction carries a base64 QR image
// whenever it carries a copy-paste code: the gateway image is used when
// present, otherwise a PNG is rendered locally.
func (c *Client) ensureQRImage(tx *Transaction) {
	if tx.PIX.QRCodeImageBase64 != "" {
		tx.PIX.QRCodeImageBase64 = stripDataURLPrefix(tx.PIX.QRCodeImageBase64)
		return
	}
	if tx.PIX.QRCodeText == "" {
		return
	}
	png, err := qrcode.Encode(tx.PIX.QRCodeText, qrcode.Medium, 256)
	if err != nil {
		logger.Warnf("render pix qr code: %v", err)
		return
	}
	tx.PIX.QRCodeImageBase64 = base64.StdEncoding.EncodeToString(png)
}
