// Package signature builds and verifies the canonical digests exchanged with
// the payment gateway on checkout initiation and on result callbacks.
package signature

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"sort"
	"strings"
)

type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA256 Algorithm = "sha256"
)

// ShpPrefix marks merchant custom fields round-tripped by the gateway.
const ShpPrefix = "shp_"

var ErrUnknownAlgorithm = errors.New("unknown_signature_algorithm")

func ParseAlgorithm(raw string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(raw))) {
	case MD5, "":
		return MD5, nil
	case SHA256, "sha-256":
		return SHA256, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, raw)
	}
}

func (a Algorithm) newHash() hash.Hash {
	if a == SHA256 {
		return sha256.New()
	}
	return md5.New()
}

// SignInitiate signs a checkout request:
// login:outSum:invId[:receipt][:k=v...]:password.
func SignInitiate(login, outSum, invID, receipt string, shp map[string]string, password string, alg Algorithm) string {
	parts := []string{login, outSum, invID}
	if receipt != "" {
		parts = append(parts, receipt)
	}
	parts = append(parts, shpPairs(shp)...)
	parts = append(parts, password)
	return digest(alg, parts)
}

// SignResult signs a result callback: outSum:invId[:k=v...]:password.
func SignResult(outSum, invID string, shp map[string]string, password string, alg Algorithm) string {
	parts := []string{outSum, invID}
	parts = append(parts, shpPairs(shp)...)
	parts = append(parts, password)
	return digest(alg, parts)
}

// Verify compares two hex digests ignoring case in constant time.
func Verify(expected, provided string) bool {
	a := []byte(strings.ToLower(strings.TrimSpace(expected)))
	b := []byte(strings.ToLower(strings.TrimSpace(provided)))
	if len(a) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ExtractShp returns every parameter whose key starts with shp_ in any case.
// Keys keep their original spelling since they are part of the signed string.
func ExtractShp(params map[string][]string) map[string]string {
	out := make(map[string]string)
	for key, values := range params {
		if len(key) <= len(ShpPrefix) || !strings.EqualFold(key[:len(ShpPrefix)], ShpPrefix) {
			continue
		}
		value := ""
		if len(values) > 0 {
			value = values[0]
		}
		out[key] = value
	}
	return out
}

func shpPairs(shp map[string]string) []string {
	if len(shp) == 0 {
		return nil
	}
	keys := make([]string, 0, len(shp))
	for k := range shp {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+shp[k])
	}
	return pairs
}

func digest(alg Algorithm, parts []string) string {
	h := alg.newHash()
	h.Write([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(h.Sum(nil))
}
