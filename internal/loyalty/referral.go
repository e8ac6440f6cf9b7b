// internal/loyalty/referral.go
package loyalty

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

// fallbackPrefix is used when a first name leaves fewer than three ASCII
// letters after stripping.
const fallbackPrefix = "USR"

// GenerateReferralCode builds a human-shareable code from the account's
// first name and ID: a 3-letter prefix, a 4-digit number in [1000, 9999]
// and the last 3 characters of the ID, uppercased. Always exactly
// ReferralCodeLength characters. Uniqueness is probabilistic; the accounts
// store enforces it with a unique constraint and retries on collision.
func GenerateReferralCode(firstName string, accountID uuid.UUID) string {
	prefix := namePrefix(firstName)
	number := 1000 + rand.Intn(9000)
	id := accountID.String()
	suffix := strings.ToUpper(id[len(id)-3:])
	return fmt.Sprintf("%s%d%s", prefix, number, suffix)
}

func namePrefix(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
		if b.Len() == 3 {
			break
		}
	}
	if b.Len() < 3 {
		return fallbackPrefix
	}
	return b.String()
}
