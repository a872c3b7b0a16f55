package licensing

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// keyAlphabet drops the easily confused characters 0/O/1/I.
const keyAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	maxBatchSize      = 50
	maxExpirationDays = 3650
	defaultExpiration = 7
	minKeyLength      = 8
	maxKeyLength      = 64
	defaultKeyLength  = 16
	keyGroupSize      = 4
)

// RandomKey draws length characters from the key alphabet using crypto/rand.
func RandomKey(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	var b strings.Builder
	b.Grow(length)
	for _, c := range buf {
		b.WriteByte(keyAlphabet[int(c)%len(keyAlphabet)])
	}
	return b.String(), nil
}

// FormatKey splits raw into dash-separated groups.
func FormatKey(raw string, group int) string {
	if group <= 0 {
		return raw
	}
	var parts []string
	for i := 0; i < len(raw); i += group {
		end := i + group
		if end > len(raw) {
			end = len(raw)
		}
		parts = append(parts, raw[i:end])
	}
	return strings.Join(parts, "-")
}

// GenerateParams is the raw key-generation request before clamping.
type GenerateParams struct {
	ProjectID      string
	CollectionID   string
	Quantity       int
	ExpirationDays *int
	Length         int
	Prefix         string
	Dashed         *bool
}

// batchSpec is a generation request normalized into safe bounds.
type batchSpec struct {
	quantity       int
	expirationDays int
	length         int
	prefix         string
	dashed         bool
}

// normalize clamps the request: quantity into [1,50], expiration into
// [0,3650] days defaulting to 7 (0 means never expires), length into [8,64]
// defaulting to 16. Dashes are on unless explicitly disabled.
func (p GenerateParams) normalize() batchSpec {
	spec := batchSpec{
		quantity:       clamp(p.Quantity, 1, maxBatchSize),
		expirationDays: defaultExpiration,
		length:         defaultKeyLength,
		prefix:         strings.TrimSpace(p.Prefix),
		dashed:         p.Dashed == nil || *p.Dashed,
	}
	if p.ExpirationDays != nil {
		spec.expirationDays = clamp(*p.ExpirationDays, 0, maxExpirationDays)
	}
	if p.Length != 0 {
		spec.length = clamp(p.Length, minKeyLength, maxKeyLength)
	}
	return spec
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// buildKey produces one key formatted per the batch settings.
func (s batchSpec) buildKey() (string, error) {
	raw, err := RandomKey(s.length)
	if err != nil {
		return "", err
	}
	key := raw
	if s.dashed {
		key = FormatKey(raw, keyGroupSize)
	}
	if s.prefix != "" {
		key = s.prefix + "-" + key
	}
	return key, nil
}

// expireAt resolves the batch expiry; nil means the keys never expire.
func (s batchSpec) expireAt(now time.Time) *time.Time {
	if s.expirationDays <= 0 {
		return nil
	}
	t := now.AddDate(0, 0, s.expirationDays)
	return &t
}
