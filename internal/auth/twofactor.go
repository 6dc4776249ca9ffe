package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"time"
)

// TOTP implements RFC 6238 time-based one-time passwords: 30-second step,
// 6 digits, SHA-1, with a ±1 step skew allowance on verification.
const (
	totpStep   = 30 * time.Second
	totpDigits = 6
	totpSkew   = 1
)

// GenerateTwoFactorSecret returns a random base32-encoded secret suitable
// for provisioning an authenticator app.
func GenerateTwoFactorSecret() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating 2fa secret: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// VerifyTwoFactorCode reports whether code matches the TOTP derived from
// secret at any step within ±totpSkew of now.
func VerifyTwoFactorCode(secret, code string) bool {
	if len(code) != totpDigits {
		return false
	}
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		return false
	}

	now := time.Now().Unix()
	counter := now / int64(totpStep.Seconds())

	for skew := -totpSkew; skew <= totpSkew; skew++ {
		if totp(key, counter+int64(skew)) == code {
			return true
		}
	}
	return false
}

func totp(key []byte, counter int64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(counter))

	mac := hmac.New(sha1.New, key)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := (uint32(sum[offset])&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])

	mod := uint32(1)
	for i := 0; i < totpDigits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", totpDigits, code%mod)
}
