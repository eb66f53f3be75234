package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// CodeAlphabet is the character set used for generated invite code suffixes.
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NormalizeCode trims surrounding whitespace and upper-cases an invite code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Hasher produces the one-way lookup hash for invite codes.
// A non-empty pepper turns it into a keyed BLAKE2b-256 MAC.
type Hasher struct {
	pepper []byte
}

func NewHasher(pepper string) (*Hasher, error) {
	if len(pepper) > blake2b.Size {
		return nil, fmt.Errorf("code pepper must be at most %d bytes", blake2b.Size)
	}
	var key []byte
	if pepper != "" {
		key = []byte(pepper)
	}
	return &Hasher{pepper: key}, nil
}

// HashCode normalizes the code and returns its hex encoded digest.
func (h *Hasher) HashCode(code string) string {
	normalized := []byte(NormalizeCode(code))
	if len(h.pepper) == 0 {
		sum := blake2b.Sum256(normalized)
		return hex.EncodeToString(sum[:])
	}
	mac, _ := blake2b.New256(h.pepper) // key length checked in NewHasher
	mac.Write(normalized)
	return hex.EncodeToString(mac.Sum(nil))
}

// GenerateCodeSuffix returns n characters drawn uniformly from CodeAlphabet.
func GenerateCodeSuffix(n int) (string, error) {
	limit := big.NewInt(int64(len(CodeAlphabet)))
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate random index: %w", err)
		}
		sb.WriteByte(CodeAlphabet[idx.Int64()])
	}
	return sb.String(), nil
}

// GenerateInviteCode builds a PREFIX-XXXXXXXX code. An empty prefix yields the bare suffix.
func GenerateInviteCode(prefix string, suffixLen int) (string, error) {
	suffix, err := GenerateCodeSuffix(suffixLen)
	if err != nil {
		return "", err
	}
	prefix = NormalizeCode(prefix)
	if prefix == "" {
		return suffix, nil
	}
	return prefix + "-" + suffix, nil
}
