package adapter

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// SignatureTolerance is the maximum accepted clock skew between the timestamp
// embedded in the signature header and the receiver's clock.
const SignatureTolerance = 5 * time.Minute

// VerifyWebhookSignature validates the authenticity and freshness of a raw
// webhook payload against a header of the form
//
//	t=<unixSeconds>,v1=<hex>[,v1=<hex>...]
//
// Multiple v1 values appear during secret rotation; the payload is accepted
// when any candidate matches hex(HMAC-SHA256(secret, "<t>.<payload>")) and
// |now - t| <= SignatureTolerance. Comparison is constant-time. Malformed
// input of any kind yields false, never a panic.
func VerifyWebhookSignature(payload []byte, header, secret string, now time.Time) bool {
	if secret == "" || header == "" {
		return false
	}

	var timestamp int64
	haveTimestamp := false
	var candidates []string

	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return false
			}
			timestamp = ts
			haveTimestamp = true
		case "v1":
			candidates = append(candidates, v)
		}
	}

	if !haveTimestamp || len(candidates) == 0 {
		return false
	}

	skew := now.Unix() - timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(SignatureTolerance/time.Second) {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	matched := false
	for _, candidate := range candidates {
		if len(candidate) != len(expected) {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(expected)) == 1 {
			matched = true
		}
	}
	return matched
}
