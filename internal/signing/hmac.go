package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Sign produces the outbound signature headers for dispatched replies.
func Sign(secret string, payload []byte) (signature string, timestamp int64) {
	timestamp = time.Now().Unix()
	toSign := fmt.Sprintf("%d.%s", timestamp, string(payload))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(toSign))
	sig := hex.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("v1=%s", sig), timestamp
}

// VerifyInbound checks the X-Hub-Signature-256 header ("sha256=<hex>")
// against the raw request body. An empty secret disables verification and
// the check passes; this open-by-default policy matches the gateways that
// only sign webhooks once a shared secret has been provisioned.
func VerifyInbound(secret string, body []byte, header string) bool {
	if secret == "" {
		return true
	}
	sig := strings.TrimPrefix(header, "sha256=")
	if sig == header || sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sig))
}
