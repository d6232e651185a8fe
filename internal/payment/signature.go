package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Webhook signatures follow the processor's scheme: the header is
// "t=<unix>,v1=<hex hmac-sha256>" and the signed payload is
// "<t>.<raw body>". Signatures older than the tolerance are rejected to
// blunt replay of captured payloads.
const signatureTolerance = 5 * time.Minute

func ComputeSignature(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader builds a header the verifier accepts; used by the fake
// gateway and by tests.
func SignatureHeader(secret string, timestamp int64, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, ComputeSignature(secret, timestamp, body))
}

func verifySignature(secret string, body []byte, header string, now time.Time) error {
	var timestamp int64 = -1
	var signature string

	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrBadSignature
			}
			timestamp = ts
		case "v1":
			signature = v
		}
	}

	if timestamp < 0 || signature == "" {
		return ErrBadSignature
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return ErrBadSignature
	}

	expected := ComputeSignature(secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}

	return nil
}
