package loyalty

import (
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestGenerateReferralCodeFormat(t *testing.T) {
	id := uuid.MustParse("0be327e3-0f18-4bd9-b36d-6df0bfd4abc1")

	code := GenerateReferralCode("Adaeze", id)
	require.Len(t, code, ReferralCodeLength)

	assert.Equal(t, "ADA", code[:3])
	assert.Equal(t, "BC1", code[7:])

	number, err := strconv.Atoi(code[3:7])
	require.NoError(t, err)
	assert.GreaterOrEqual(t, number, 1000)
	assert.LessOrEqual(t, number, 9999)
}

func TestGenerateReferralCodePrefixFallback(t *testing.T) {
	id := uuid.New()

	// Names leaving fewer than three ASCII letters fall back to USR.
	for _, name := range []string{"", "Él", "Jo", "喵喵", "1-2-3"} {
		code := GenerateReferralCode(name, id)
		assert.Equal(t, fallbackPrefix, code[:3], "name %q", name)
		assert.Len(t, code, ReferralCodeLength)
	}
}

func TestGenerateReferralCodeUppercasesName(t *testing.T) {
	id := uuid.New()
	code := GenerateReferralCode("chinedu okafor", id)
	assert.Equal(t, "CHI", code[:3])
}

func TestGenerateReferralCodeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.String().Draw(t, "name")
		id := uuid.New()

		code := GenerateReferralCode(name, id)
		if len(code) != ReferralCodeLength {
			t.Fatalf("code %q has length %d, want %d", code, len(code), ReferralCodeLength)
		}

		idStr := id.String()
		if got, want := code[7:], strings.ToUpper(idStr[len(idStr)-3:]); got != want {
			t.Fatalf("suffix %q, want %q", got, want)
		}

		number, err := strconv.Atoi(code[3:7])
		if err != nil || number < 1000 || number > 9999 {
			t.Fatalf("middle of %q is not a 4-digit number in [1000, 9999]", code)
		}
	})
}
