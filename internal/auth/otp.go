package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/rs/zerolog/log"
)

// OTP kinds stored alongside the code, so a password-reset code cannot
// be replayed as a mobile login and vice versa. The kind names mirror
// the delivery channel they identify the user by.
const (
	OTPKindEmail = "email"
	OTPKindPhone = "phone"
)

// GenerateOTP returns a random six-digit code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Sender delivers a one-time code to the user out of band.
type Sender interface {
	Send(identifier, code, kind string) error
}

// LogSender writes codes to the log instead of delivering them. It
// stands in until an email or SMS provider is configured.
type LogSender struct{}

func (LogSender) Send(identifier, code, kind string) error {
	log.Info().
		Str("component", "auth").
		Str("identifier", identifier).
		Str("kind", kind).
		Str("code", code).
		Msg("One-time code issued")
	return nil
}
