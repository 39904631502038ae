// Package webhook verifies payment-provider notifications signed with the
// "t=<unix>,v1=<hex>" HMAC-SHA256 scheme and routes verified events to their effects.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance bounds the age of a signature timestamp.
const DefaultTolerance = 5 * time.Minute

const signingScheme = "v1"

// Verification failures. The message is what the caller sees after "Webhook error: ".
var (
	ErrNoSecret          = errors.New("webhook signing secret is not configured")
	ErrInvalidHeader     = errors.New("unable to extract timestamp and signatures from header")
	ErrNoValidSignatures = errors.New("no signatures found with expected scheme")
	ErrSignatureMismatch = errors.New("no signatures found matching the expected signature for payload")
	ErrTooOld            = errors.New("timestamp outside the tolerance zone")
)

// Verifier checks signature headers against a shared secret.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a Verifier. A non-positive tolerance uses DefaultTolerance; a nil
// clock uses time.Now.
func NewVerifier(secret string, tolerance time.Duration, now func() time.Time) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{secret: []byte(strings.TrimSpace(secret)), tolerance: tolerance, now: now}
}

type parsedHeader struct {
	timestamp  time.Time
	signatures [][]byte
}

func parseHeader(header string) (*parsedHeader, error) {
	h := &parsedHeader{}
	var haveTimestamp bool

	for _, item := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok {
			return nil, ErrInvalidHeader
		}
		switch key {
		case "t":
			sec, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, ErrInvalidHeader
			}
			h.timestamp = time.Unix(sec, 0)
			haveTimestamp = true
		case signingScheme:
			sig, err := hex.DecodeString(value)
			if err != nil {
				// malformed entries are skipped; another v1 may still match
				continue
			}
			h.signatures = append(h.signatures, sig)
		}
	}

	if !haveTimestamp {
		return nil, ErrInvalidHeader
	}
	if len(h.signatures) == 0 {
		return nil, ErrNoValidSignatures
	}
	return h, nil
}

func computeSignature(secret []byte, t time.Time, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(strconv.FormatInt(t.Unix(), 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	return mac.Sum(nil)
}

// Verify checks header against payload. It returns one of the Err* values.
func (v *Verifier) Verify(payload []byte, header string) error {
	if len(v.secret) == 0 {
		return ErrNoSecret
	}
	h, err := parseHeader(header)
	if err != nil {
		return err
	}

	expected := computeSignature(v.secret, h.timestamp, payload)
	matched := false
	for _, sig := range h.signatures {
		if subtle.ConstantTimeCompare(expected, sig) == 1 {
			matched = true
			break
		}
	}
	if !matched {
		return ErrSignatureMismatch
	}

	age := v.now().Sub(h.timestamp)
	if age < 0 {
		age = -age
	}
	if age > v.tolerance {
		return ErrTooOld
	}
	return nil
}

// SignatureHeader builds a header for payload signed at t. It is what a provider sends and
// is used to produce fixtures.
func SignatureHeader(secret string, t time.Time, payload []byte) string {
	sig := computeSignature([]byte(strings.TrimSpace(secret)), t, payload)
	return fmt.Sprintf("t=%d,%s=%s", t.Unix(), signingScheme, hex.EncodeToString(sig))
}
