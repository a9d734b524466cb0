package service

import (
	"crypto/rand"
	"math/big"
)

// MaxInvoiceID is the largest id the gateway accepts.
const MaxInvoiceID int64 = 1<<31 - 1

// InvoiceIDGenerator returns a candidate invoice id in [1, MaxInvoiceID].
type InvoiceIDGenerator func() (int64, error)

func RandomInvoiceID() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(MaxInvoiceID))
	if err != nil {
		return 0, err
	}
	return n.Int64() + 1, nil
}
