package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// canonical is the signed string: "<external_ref>|<true|false>".
func canonical(externalRef string, success bool) string {
	return externalRef + "|" + strconv.FormatBool(success)
}

// SignConfirmation returns the signature the gateway attaches to a webhook.
func SignConfirmation(secret, externalRef string, success bool) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical(externalRef, success)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks p.Signature against secret. An empty secret
// never verifies.
func VerifyWebhookSignature(p WebhookPayload, secret string) bool {
	sig := strings.TrimSpace(p.Signature)
	secret = strings.TrimSpace(secret)
	if sig == "" || secret == "" {
		return false
	}
	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical(p.ExternalRef, p.Success)))
	return hmac.Equal(mac.Sum(nil), decoded)
}
