package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Number is a native event argument that may be encoded as a JSON number or a
// decimal/hex string. Large u128 balances arrive as strings.
type Number struct {
	*big.Int
}

// UnmarshalJSON implements json.Unmarshaler
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		n.Int = nil
		return nil
	}

	s := strings.Trim(string(data), `"`)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		n.Int = nil
		return nil
	}

	v := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		_, ok = v.SetString(s[2:], 16)
	} else {
		_, ok = v.SetString(s, 10)
	}
	if !ok {
		return fmt.Errorf("invalid number: %s", string(data))
	}

	n.Int = v
	return nil
}

// IsSet reports whether the argument was present
func (n Number) IsSet() bool {
	return n.Int != nil
}

// Uint32 returns the value as a collection id
func (n Number) Uint32() (uint32, error) {
	if n.Int == nil {
		return 0, fmt.Errorf("missing value")
	}
	if n.Sign() < 0 || !n.IsUint64() || n.Uint64() > 0xffffffff {
		return 0, fmt.Errorf("value out of range: %s", n.String())
	}
	return uint32(n.Uint64()), nil
}

// tokenPair is the (collectionId, serialNumber) tuple used by sft events
type tokenPair [2]Number

// UnmarshalJSON implements json.Unmarshaler
func (p *tokenPair) UnmarshalJSON(data []byte) error {
	var values []Number
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	if len(values) != 2 {
		return fmt.Errorf("expected [collectionId, serialNumber], got %d values", len(values))
	}
	p[0], p[1] = values[0], values[1]
	return nil
}
