package provider

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// randomDigits returns n uniformly random decimal digits.
func randomDigits(n int) (string, error) {
	buf := make([]byte, n)
	ten := big.NewInt(10)
	for i := range buf {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("csprng: %w", err)
		}
		buf[i] = byte('0' + d.Int64())
	}
	return string(buf), nil
}

// randomInt returns a random integer in [min, max].
func randomInt(min, max int64) (int64, error) {
	if min > max {
		return 0, fmt.Errorf("min (%d) > max (%d)", min, max)
	}
	r, err := rand.Int(rand.Reader, big.NewInt(max-min+1))
	if err != nil {
		return 0, fmt.Errorf("csprng: %w", err)
	}
	return r.Int64() + min, nil
}

// MakeUniqueID returns a 15-digit id: the last 6 digits of the current
// millisecond timestamp followed by 9 random digits.
func MakeUniqueID(now time.Time) string {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	suffix, err := randomDigits(9)
	if err != nil {
		suffix = fmt.Sprintf("%09d", now.UnixNano()%1e9)
	}
	id := ms + suffix
	if len(id) > 15 {
		id = id[:15]
	}
	return id
}
