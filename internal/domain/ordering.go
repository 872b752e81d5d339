package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// OrderingKey is the chain position of a source record: the block number and
// the position of the event or transaction within the block.
//
// Keys are compared numerically, so "12-9" sorts before "12-10".
type OrderingKey struct {
	Block uint64
	Index uint64
}

// ParseOrderingKey parses the "<block>-<index>" form used as event id
func ParseOrderingKey(s string) (OrderingKey, error) {
	blockPart, indexPart, ok := strings.Cut(s, "-")
	if !ok {
		return OrderingKey{}, fmt.Errorf("invalid ordering key %q: missing separator", s)
	}

	block, err := strconv.ParseUint(blockPart, 10, 64)
	if err != nil {
		return OrderingKey{}, fmt.Errorf("invalid ordering key %q: %w", s, err)
	}
	index, err := strconv.ParseUint(indexPart, 10, 64)
	if err != nil {
		return OrderingKey{}, fmt.Errorf("invalid ordering key %q: %w", s, err)
	}

	return OrderingKey{Block: block, Index: index}, nil
}

// String returns the "<block>-<index>" form
func (k OrderingKey) String() string {
	return fmt.Sprintf("%d-%d", k.Block, k.Index)
}

// Compare returns -1, 0 or +1 depending on whether k sorts before, equal to or after o
func (k OrderingKey) Compare(o OrderingKey) int {
	switch {
	case k.Block < o.Block:
		return -1
	case k.Block > o.Block:
		return 1
	case k.Index < o.Index:
		return -1
	case k.Index > o.Index:
		return 1
	}
	return 0
}

// Less reports whether k sorts before o
func (k OrderingKey) Less(o OrderingKey) bool {
	return k.Compare(o) < 0
}
