package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/and161185/imagify/internal/errs"
)

const (
	SignatureHeader = "x-webhook-signature"
	TimestampHeader = "x-webhook-timestamp"
)

// Sign computes the webhook signature: base64(HMAC-SHA256(timestamp+body)).
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func VerifySignature(secret, timestamp string, body []byte, signature string) error {
	if secret == "" || timestamp == "" || signature == "" {
		return errs.ErrInvalidSignature
	}
	expected := Sign(secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return errs.ErrInvalidSignature
	}
	return nil
}
