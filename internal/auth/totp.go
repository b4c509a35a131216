package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpIssuer = "Subgate"

// GenerateTOTPSecret creates a new TOTP secret for a user during 2FA setup.
// Returns the key so callers can expose both the base32 secret and the
// otpauth:// provisioning URL.
func GenerateTOTPSecret(email string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: email,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	return key, nil
}

// ValidateTOTPCode checks a 6-digit code against a stored secret
func ValidateTOTPCode(code, secret string) bool {
	return totp.Validate(code, secret)
}

// GenerateRecoveryCodes returns n single-use recovery codes (8 hex chars each)
func GenerateRecoveryCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	for range n {
		buf := make([]byte, 4)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate recovery code: %w", err)
		}
		codes = append(codes, hex.EncodeToString(buf))
	}
	return codes, nil
}
