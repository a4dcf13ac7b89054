package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Hub-Signature-256"

var (
	// ErrMalformedSignature means the header is missing or not "sha256=<hex>".
	ErrMalformedSignature = errors.New("malformed signature header")
	// ErrSignatureMismatch means the signature does not match the body.
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// VerifySignature checks a GitHub "sha256=<hex>" signature against body.
// The comparison is constant time.
func VerifySignature(secret, body []byte, header string) error {
	if header == "" {
		return fmt.Errorf("%w: missing %s", ErrMalformedSignature, SignatureHeader)
	}
	hexSignature, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return fmt.Errorf("%w: missing sha256= prefix", ErrMalformedSignature)
	}
	signature, err := hex.DecodeString(hexSignature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), signature) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign returns the header value GitHub would send for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
