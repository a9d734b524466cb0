package service

import (
	"encoding/json"
	"net/url"
	"unicode/utf8"

	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/order/domain"
)

const maxReceiptItemName = 128

// buildReceipt returns the canonical receipt JSON and its URL-encoded form.
// The encoded form is what the gateway receives and what gets signed.
func buildReceipt(cfg config.GatewayConfig, product config.Product, amount string) ([]byte, string, error) {
	name := product.Name
	if name == "" {
		name = cfg.StoreName
	}
	if utf8.RuneCountInString(name) > maxReceiptItemName {
		name = string([]rune(name)[:maxReceiptItemName])
	}

	receipt := domain.Receipt{
		Sno: cfg.ReceiptSno,
		Items: []domain.ReceiptItem{{
			Name:          name,
			Quantity:      1,
			Sum:           json.Number(amount),
			PaymentMethod: cfg.ReceiptPaymentMethod,
			PaymentObject: cfg.ReceiptPaymentObject,
			Tax:           cfg.ReceiptTax,
		}},
	}

	raw, err := json.Marshal(receipt)
	if err != nil {
		return nil, "", err
	}
	return raw, url.QueryEscape(string(raw)), nil
}
