package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries GitHub's HMAC-SHA256 signature of the raw body.
const SignatureHeader = "X-Hub-Signature-256"

const signatureAlgo = "sha256"

// VerifySignature reports whether header is a valid "sha256=<hex>"
// signature of payload under secret.
//
// The comparison is constant-time. Any malformed input (missing separator,
// extra separators, another algorithm, empty digest) yields false; nothing
// about the expected digest is revealed to the caller.
func VerifySignature(payload []byte, header, secret string) bool {
	if header == "" {
		return false
	}

	algo, digest, ok := strings.Cut(header, "=")
	if !ok || strings.Contains(digest, "=") {
		return false
	}
	if algo != signatureAlgo || digest == "" {
		return false
	}

	expected := computeDigest(payload, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(digest)) == 1
}

// SignPayload returns the header value GitHub would send for payload.
func SignPayload(payload []byte, secret string) string {
	return signatureAlgo + "=" + computeDigest(payload, secret)
}

// computeDigest returns the lowercase hex HMAC-SHA256 of body.
func computeDigest(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
