package budget

import (
	"fmt"
	"strings"
)

// DefaultMintAttempts bounds the read-format-insert loop in Create.
const DefaultMintAttempts = 5

// CodePrefix returns the "BUD-{year}-{centerDigits}-" part shared by every
// code minted for (fiscalYear, center).
func CodePrefix(fiscalYear int, centerCode string) string {
	return fmt.Sprintf("BUD-%d-%s-", fiscalYear, centerDigits(centerCode))
}

// MintCode formats BUD-{year}-{centerDigits}-{seq}, where seq is the highest
// sequence already stored under the same prefix plus one, zero-padded to 3
// digits.
func MintCode(fiscalYear, highest int, centerCode string) string {
	return fmt.Sprintf("%s%03d", CodePrefix(fiscalYear, centerCode), highest+1)
}

func centerDigits(code string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, code)
	if digits == "" {
		return "000"
	}
	return digits
}
