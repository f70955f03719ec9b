package verification

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

const (
	codeMin = 1000
	codeMax = 9999
)

var codeSpan = big.NewInt(codeMax - codeMin + 1)

// GenerateCode returns a uniformly random code in [1000, 9999]. Codes never
// start with zero.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}
