package store

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	CodePrefix       = "UP"
	codeRandomLength = 8
	codeAlphabet     = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// MaxCodeRounds bounds regeneration of colliding codes within one batch.
	MaxCodeRounds = 5
)

// NewCode returns UP-<base36 millis>-<8 random chars>.
func NewCode(now time.Time) (string, error) {
	suffix, err := randomSuffix(codeRandomLength)
	if err != nil {
		return "", err
	}
	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return CodePrefix + "-" + stamp + "-" + suffix, nil
}

// NewCodes returns n codes distinct from each other and from skip.
func NewCodes(now time.Time, n int, skip map[string]bool) ([]string, error) {
	codes := make([]string, 0, n)
	seen := make(map[string]bool, n)
	for len(codes) < n {
		code, err := NewCode(now)
		if err != nil {
			return nil, err
		}
		if seen[code] || skip[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	return codes, nil
}

func randomSuffix(length int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// ValidCodeFormat checks the shape of a scanned code before it reaches storage.
func ValidCodeFormat(code string) bool {
	parts := strings.Split(code, "-")
	if len(parts) != 3 || parts[0] != CodePrefix {
		return false
	}
	if parts[1] == "" || len(parts[2]) != codeRandomLength {
		return false
	}
	if _, err := strconv.ParseInt(parts[1], 36, 64); err != nil {
		return false
	}
	for _, r := range parts[2] {
		if !strings.ContainsRune(codeAlphabet, r) {
			return false
		}
	}
	return true
}
