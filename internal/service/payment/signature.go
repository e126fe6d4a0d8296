package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// SignatureHeader — заголовок с подписью webhook.
const SignatureHeader = "Sales-Signature"

const defaultTolerance = 5 * time.Minute

// SignatureVerifier проверяет HMAC-SHA256 подпись формата "t=<unix>,v1=<hex>".
type SignatureVerifier struct {
	secret    []byte
	tolerance time.Duration
	clock     func() time.Time
}

// NewSignatureVerifier создаёт проверку подписи. tolerance <= 0 означает 5 минут.
func NewSignatureVerifier(secret string, tolerance time.Duration) *SignatureVerifier {
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	return &SignatureVerifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock возвращает копию с другим источником времени.
func (v *SignatureVerifier) WithClock(clock func() time.Time) *SignatureVerifier {
	c := *v
	c.clock = clock
	return &c
}

// Verify проверяет подпись тела запроса. Любое несоответствие даёт domain.ErrSignatureInvalid.
func (v *SignatureVerifier) Verify(payload []byte, header string) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("webhook secret is not configured: %w", domain.ErrSignatureInvalid)
	}

	var timestamp int64
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("bad timestamp: %w", domain.ErrSignatureInvalid)
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == 0 || len(signatures) == 0 {
		return fmt.Errorf("malformed signature header: %w", domain.ErrSignatureInvalid)
	}

	age := v.clock().Sub(time.Unix(timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return fmt.Errorf("timestamp outside tolerance: %w", domain.ErrSignatureInvalid)
	}

	expected := v.compute(payload, timestamp)
	for _, sig := range signatures {
		decoded, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return fmt.Errorf("no matching signature: %w", domain.ErrSignatureInvalid)
}

// Sign строит заголовок подписи для payload в момент at.
func (v *SignatureVerifier) Sign(payload []byte, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(v.compute(payload, ts)))
}

func (v *SignatureVerifier) compute(payload []byte, timestamp int64) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}
