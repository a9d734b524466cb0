package robokassa

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/coursepay/internal/payment/domain"
	"github.com/smallbiznis/coursepay/internal/signature"
)

const maxInvoiceID = 1<<31 - 1

var altEmailFields = []string{"EMail", "Email", "email"}

type Adapter struct {
	password2 string
	algorithm signature.Algorithm
}

func NewAdapter(password2 string, alg signature.Algorithm) *Adapter {
	return &Adapter{password2: password2, algorithm: alg}
}

// Parse reads the result callback fields. Missing or malformed OutSum,
// InvId or SignatureValue yield ErrBadRequest.
func (a *Adapter) Parse(params url.Values) (*paymentdomain.ResultNotification, error) {
	outSum := strings.TrimSpace(params.Get("OutSum"))
	invID := strings.TrimSpace(params.Get("InvId"))
	sig := strings.TrimSpace(params.Get("SignatureValue"))
	if outSum == "" || invID == "" || sig == "" {
		return nil, paymentdomain.ErrBadRequest
	}

	amount, err := decimal.NewFromString(outSum)
	if err != nil || amount.IsNegative() {
		return nil, paymentdomain.ErrBadRequest
	}
	id, err := strconv.ParseInt(invID, 10, 64)
	if err != nil || id < 1 || id > maxInvoiceID {
		return nil, paymentdomain.ErrBadRequest
	}

	n := &paymentdomain.ResultNotification{
		InvoiceID: id,
		InvID:     invID,
		OutSum:    outSum,
		Signature: sig,
		Shp:       signature.ExtractShp(params),
	}
	for _, field := range altEmailFields {
		if v := strings.TrimSpace(params.Get(field)); v != "" {
			n.AltEmail = v
			break
		}
	}
	return n, nil
}

// Verify recomputes the result signature with password #2.
func (a *Adapter) Verify(n *paymentdomain.ResultNotification) error {
	if n == nil || a.password2 == "" {
		return paymentdomain.ErrBadSignature
	}
	expected := signature.SignResult(n.OutSum, n.InvID, n.Shp, a.password2, a.algorithm)
	if !signature.Verify(expected, n.Signature) {
		return paymentdomain.ErrBadSignature
	}
	return nil
}

// Shp returns a custom field by name, ignoring the case of the key.
func Shp(n *paymentdomain.ResultNotification, name string) string {
	if n == nil {
		return ""
	}
	if v, ok := n.Shp[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range n.Shp {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
