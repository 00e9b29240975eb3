package payment

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
)

// Signature computes the hex SHA-512 digest Midtrans sends with webhooks:
// sha512(order_id + status_code + gross_amount + serverKey).
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature checks the signature_key of an incoming webhook.
func VerifySignature(orderID, statusCode, grossAmount, serverKey, signatureKey string) bool {
	want := Signature(orderID, statusCode, grossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(want), []byte(signatureKey)) == 1
}
