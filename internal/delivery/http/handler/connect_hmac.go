package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// maxConnectSignatures is how many X-DocuSign-Signature-N headers are checked.
// Connect sends one per active HMAC key, up to 100.
const maxConnectSignatures = 100

// ConnectSignature computes the value DocuSign Connect puts in X-DocuSign-Signature-N
// for body: base64(HMAC-SHA256(key, body)).
func ConnectSignature(key string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyConnectSignature reports whether any of the signature headers matches body.
// header looks up a request header by name.
func VerifyConnectSignature(key string, body []byte, header func(string) string) bool {
	expected := []byte(ConnectSignature(key, body))
	for i := 1; i <= maxConnectSignatures; i++ {
		got := header(fmt.Sprintf("X-DocuSign-Signature-%d", i))
		if got == "" {
			return false
		}
		if hmac.Equal([]byte(got), expected) {
			return true
		}
	}
	return false
}
