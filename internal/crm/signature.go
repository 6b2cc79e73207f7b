package crm

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time. An optional "sha256=" prefix is accepted.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(Sign(secret, body))
	return hmac.Equal(got, want)
}

func verifyHeader(provider, secret, signature string, body []byte) error {
	switch {
	case secret == "":
		return &WebhookSignatureError{Provider: provider, Reason: "no webhook secret configured"}
	case signature == "":
		return &WebhookSignatureError{Provider: provider, Reason: "missing signature"}
	case !VerifySignature(secret, body, signature):
		return &WebhookSignatureError{Provider: provider, Reason: "invalid signature"}
	}
	return nil
}
