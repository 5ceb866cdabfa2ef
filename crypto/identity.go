package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"lukechampine.com/blake3"
)

// IdentityPrefix is the human-readable part used when rendering identities.
const IdentityPrefix = "qu"

// IdentityLength is the byte length of an identity.
const IdentityLength = 32

var errEmptySeed = errors.New("crypto: empty seed")

// Identity is the 32-byte public identity of an account on the host.
type Identity [IdentityLength]byte

// ZeroIdentity is the empty identity used for cleared recipient slots.
var ZeroIdentity Identity

// IsZero reports whether the identity is all zero bytes.
func (id Identity) IsZero() bool { return id == ZeroIdentity }

// Bytes returns a copy of the raw identity bytes.
func (id Identity) Bytes() []byte {
	out := make([]byte, IdentityLength)
	copy(out, id[:])
	return out
}

// Hex returns the 0x-prefixed lowercase hex form of the identity.
func (id Identity) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id Identity) String() string {
	conv, err := bech32.ConvertBits(id[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(IdentityPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// MarshalText encodes the identity in its bech32 form.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText accepts either the bech32 or the 0x-prefixed hex form.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseIdentity decodes an identity from its bech32 ("qu1...") or hex ("0x...") form.
func ParseIdentity(raw string) (Identity, error) {
	var out Identity
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return out, errors.New("crypto: identity required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		decoded, err := hex.DecodeString(trimmed[2:])
		if err != nil {
			return out, fmt.Errorf("crypto: invalid hex identity: %w", err)
		}
		if len(decoded) != IdentityLength {
			return out, fmt.Errorf("crypto: invalid identity length %d", len(decoded))
		}
		copy(out[:], decoded)
		return out, nil
	}
	hrp, data, err := bech32.Decode(trimmed)
	if err != nil {
		return out, fmt.Errorf("crypto: invalid bech32 identity: %w", err)
	}
	if hrp != IdentityPrefix {
		return out, fmt.Errorf("crypto: unsupported identity prefix %q", hrp)
	}
	conv, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return out, fmt.Errorf("crypto: error converting bits: %w", err)
	}
	if len(conv) != IdentityLength {
		return out, fmt.Errorf("crypto: invalid identity length %d", len(conv))
	}
	copy(out[:], conv)
	return out, nil
}

// MustParseIdentity is ParseIdentity for constants and tests.
func MustParseIdentity(raw string) Identity {
	id, err := ParseIdentity(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// IdentityFromSeed derives a deterministic identity from an operator seed. The
// seed itself never leaves the caller; only its BLAKE3 digest is used.
func IdentityFromSeed(seed string) (Identity, error) {
	var out Identity
	normalized := strings.ToLower(strings.TrimSpace(seed))
	if normalized == "" {
		return out, errEmptySeed
	}
	sum := blake3.Sum256([]byte("qugate/identity/" + normalized))
	copy(out[:], sum[:])
	return out, nil
}
