package signature

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignInitiateDeterministic(t *testing.T) {
	shp := map[string]string{"Shp_email": "a@b.com", "Shp_product": "premium_course"}

	first := SignInitiate("shop", "5490.00", "42", "", shp, "pass1", MD5)
	second := SignInitiate("shop", "5490.00", "42", "", shp, "pass1", MD5)

	assert.Equal(t, first, second)
	assert.Len(t, first, 32)
}

func TestSignInitiateMatchesCanonicalString(t *testing.T) {
	got := SignInitiate("shop", "10.00", "7", "%7B%7D", map[string]string{"Shp_b": "2", "Shp_a": "1"}, "secret", MD5)

	sum := md5.Sum([]byte("shop:10.00:7:%7B%7D:Shp_a=1:Shp_b=2:secret"))
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
}

func TestSignatureIgnoresShpOrder(t *testing.T) {
	a := map[string]string{"a": "1", "b": "2"}
	b := map[string]string{"b": "2", "a": "1"}

	for _, alg := range []Algorithm{MD5, SHA256} {
		assert.Equal(t,
			SignInitiate("shop", "1.00", "1", "", a, "p", alg),
			SignInitiate("shop", "1.00", "1", "", b, "p", alg),
		)
		assert.Equal(t, SignResult("1.00", "1", a, "p", alg), SignResult("1.00", "1", b, "p", alg))
	}
}

func TestSignatureSensitiveToValues(t *testing.T) {
	base := SignResult("1.00", "1", map[string]string{"a": "1", "b": "2"}, "p", SHA256)

	assert.NotEqual(t, base, SignResult("1.00", "1", map[string]string{"a": "1", "b": "3"}, "p", SHA256))
	assert.NotEqual(t, base, SignResult("1.01", "1", map[string]string{"a": "1", "b": "2"}, "p", SHA256))
	assert.NotEqual(t, base, SignResult("1.00", "1", map[string]string{"a": "1", "b": "2"}, "q", SHA256))
	assert.Len(t, base, 64)
}

func TestSignResultOmitsLoginAndReceipt(t *testing.T) {
	got := SignResult("990.00", "15", nil, "pass2", MD5)

	sum := md5.Sum([]byte("990.00:15:pass2"))
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
}

func TestVerify(t *testing.T) {
	assert.True(t, Verify("abc123", "ABC123"))
	assert.True(t, Verify("ABC123", "abc123"))
	assert.False(t, Verify("abc123", "abc124"))
	assert.False(t, Verify("abc123", "abc12"))
	assert.False(t, Verify("", ""))
}

func TestExtractShp(t *testing.T) {
	params := url.Values{
		"OutSum":      {"10.00"},
		"Shp_email":   {"a@b.com"},
		"SHP_product": {"premium_course"},
		"shp_promo":   {"SUMMER10"},
		"shp_":        {"ignored"},
		"InvId":       {"1"},
	}

	got := ExtractShp(params)

	assert.Equal(t, map[string]string{
		"Shp_email":   "a@b.com",
		"SHP_product": "premium_course",
		"shp_promo":   "SUMMER10",
	}, got)
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("SHA256")
	require.NoError(t, err)
	assert.Equal(t, SHA256, alg)

	alg, err = ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, MD5, alg)

	_, err = ParseAlgorithm("crc32")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}
