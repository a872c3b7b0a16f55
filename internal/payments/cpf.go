package payments

import (
	"crypto/rand"
	"strconv"
	"strings"
)

// randomCPF produces a syntactically valid CPF with correct check digits,
// used when the checkout form omits the document. The gateway rejects
// transactions without one.
func randomCPF() string {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		return "00000000000"
	}
	digits := make([]int, 11)
	for i := 0; i < 9; i++ {
		digits[i] = int(buf[i]) % 10
	}
	digits[9] = cpfCheckDigit(digits[:9], 10)
	digits[10] = cpfCheckDigit(digits[:10], 11)

	var b strings.Builder
	for _, d := range digits {
		b.WriteString(strconv.Itoa(d))
	}
	return b.String()
}

func cpfCheckDigit(digits []int, weight int) int {
	sum := 0
	for _, d := range digits {
		sum += d * weight
		weight--
	}
	rest := sum % 11
	if rest < 2 {
		return 0
	}
	return 11 - rest
}
