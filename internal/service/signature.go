package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// paymentSignature is the checkout callback signature:
// hex(HMAC-SHA256(secret, orderID + "|" + paymentID)).
func paymentSignature(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func validPaymentSignature(secret, orderID, paymentID, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := paymentSignature(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
