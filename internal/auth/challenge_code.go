package auth

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"golang.org/x/crypto/bcrypt"
)

// ChallengeCodes generates the 6-digit codes sent for admin two-factor
// challenges. Each challenge gets a fresh random HOTP secret and counter, so
// codes are unpredictable and unrelated to each other. Only the bcrypt hash
// is ever stored.
type ChallengeCodes struct {
	issuer string
	cost   int
}

// NewChallengeCodes creates a generator. cost is the bcrypt cost used for
// hashing codes; values outside bcrypt's range use bcrypt.DefaultCost.
func NewChallengeCodes(issuer string, cost int) *ChallengeCodes {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &ChallengeCodes{issuer: issuer, cost: cost}
}

// Generate returns a new code and its hash.
func (c *ChallengeCodes) Generate(accountName string) (code string, hash string, err error) {
	key, err := hotp.Generate(hotp.GenerateOpts{
		Issuer:      c.issuer,
		AccountName: accountName,
		SecretSize:  20,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate challenge secret: %w", err)
	}

	var counterBytes [8]byte
	if _, err := rand.Read(counterBytes[:]); err != nil {
		return "", "", fmt.Errorf("failed to generate challenge counter: %w", err)
	}

	code, err = hotp.GenerateCodeCustom(key.Secret(), binary.BigEndian.Uint64(counterBytes[:]), hotp.ValidateOpts{
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate challenge code: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(code), c.cost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash challenge code: %w", err)
	}
	return code, string(hashed), nil
}

// Matches reports whether code matches the stored hash.
func (c *ChallengeCodes) Matches(hash, code string) bool {
	if len(code) != int(otp.DigitsSix) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
