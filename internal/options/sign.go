package options

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Canonical builds the deterministic byte string that is signed for a
// request: the path followed by the sorted query parameters, with sig
// itself excluded. Only the first value of a repeated parameter counts,
// matching what Parse reads.
func Canonical(path string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if key == "sig" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(path)
	for i, key := range keys {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(params.Get(key))
	}
	return b.String()
}

// Sign computes the hex-encoded HMAC-SHA256 of a canonical request string.
func Sign(canonical, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the HMAC for the canonical request and compares
// it against the supplied signature in constant time. An empty or malformed
// signature always fails.
func VerifySignature(canonical, signature, secret string) bool {
	provided, err := hex.DecodeString(signature)
	if err != nil || len(provided) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hmac.Equal(provided, mac.Sum(nil))
}
