package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadSignature = errors.New("bad webhook signature")

	// ErrStaleTimestamp rejects signatures outside the tolerance window,
	// which bounds how long a captured payload can be replayed verbatim.
	ErrStaleTimestamp = errors.New("webhook timestamp outside tolerance")
)

const DefaultTolerance = 5 * time.Minute

// Signer computes and verifies webhook signatures. The scheme is the
// provider's usual one: the header carries a unix timestamp and an
// HMAC-SHA256 over "<timestamp>.<raw body>" keyed with the signing secret.
// Verification runs over the exact bytes received, before any parsing.
type Signer struct {
	secret    []byte
	tolerance time.Duration
}

func NewSigner(secret string) *Signer {
	return &Signer{
		secret:    []byte(secret),
		tolerance: DefaultTolerance,
	}
}

// Sign produces a signature header for body, used by the test suite and by
// local provider simulation.
func (s *Signer) Sign(body []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := s.compute(ts, body)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac))
}

// Verify checks header against body. The comparison is constant-time.
func (s *Signer) Verify(body []byte, header string, now time.Time) error {
	ts, theirMAC, err := parseHeader(header)
	if err != nil {
		return fmt.Errorf("parseHeader: %w", err)
	}

	sentAt := time.Unix(ts, 0)
	if d := now.Sub(sentAt); d > s.tolerance || d < -s.tolerance {
		return ErrStaleTimestamp
	}

	ourMAC := s.compute(strconv.FormatInt(ts, 10), body)
	if !hmac.Equal(ourMAC, theirMAC) {
		return ErrBadSignature
	}

	return nil
}

func (s *Signer) compute(ts string, body []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

func parseHeader(header string) (int64, []byte, error) {
	var (
		ts  int64
		mac []byte
	)

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}

		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("timestamp[%s]: %w", value, ErrBadSignature)
			}
			ts = parsed
		case "v1":
			decoded, err := hex.DecodeString(value)
			if err != nil {
				return 0, nil, fmt.Errorf("mac is not hex: %w", ErrBadSignature)
			}
			mac = decoded
		}
	}

	if ts == 0 || len(mac) == 0 {
		return 0, nil, ErrBadSignature
	}

	return ts, mac, nil
}
