package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	singlePrecompilePrefix  = "aaaaaaaa"
	balancePrecompilePrefix = "bbbbbbbb"
	precompileSuffix        = "000000000000000000000000"
)

// NormalizeAddress returns the EIP-55 checksummed form of a hex address.
// Non-hex input is returned unchanged.
func NormalizeAddress(address string) string {
	if !common.IsHexAddress(address) {
		return address
	}
	return common.HexToAddress(address).Hex()
}

// IsAddress reports whether s is a 20-byte hex address
func IsAddress(s string) bool {
	return common.IsHexAddress(s)
}

// IsZeroAddress reports whether the address is empty or the null address
func IsZeroAddress(address string) bool {
	if address == "" {
		return true
	}
	return common.IsHexAddress(address) && common.HexToAddress(address) == (common.Address{})
}

// CollectionIDToSingleAddress returns the ERC721 precompile address of a native NFT collection
func CollectionIDToSingleAddress(collectionID uint32) string {
	return precompileAddress(singlePrecompilePrefix, collectionID)
}

// CollectionIDToBalanceAddress returns the ERC1155 precompile address of a native SFT collection
func CollectionIDToBalanceAddress(collectionID uint32) string {
	return precompileAddress(balancePrecompilePrefix, collectionID)
}

// CollectionIDToAddress returns the precompile address of a native collection for the given kind
func CollectionIDToAddress(kind TokenKind, collectionID uint32) string {
	if kind == TokenKindBalance {
		return CollectionIDToBalanceAddress(collectionID)
	}
	return CollectionIDToSingleAddress(collectionID)
}

// CollectionIDFromAddress extracts the native collection id from a precompile address
func CollectionIDFromAddress(address string) (uint32, TokenKind, bool) {
	if !common.IsHexAddress(address) {
		return 0, "", false
	}

	hex := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X"))
	if !strings.HasSuffix(hex, precompileSuffix) {
		return 0, "", false
	}

	var kind TokenKind
	switch hex[:8] {
	case singlePrecompilePrefix:
		kind = TokenKindSingle
	case balancePrecompilePrefix:
		kind = TokenKindBalance
	default:
		return 0, "", false
	}

	id, err := strconv.ParseUint(hex[8:16], 16, 32)
	if err != nil {
		return 0, "", false
	}

	return uint32(id), kind, true
}

func precompileAddress(prefix string, collectionID uint32) string {
	return common.HexToAddress(fmt.Sprintf("0x%s%08x%s", prefix, collectionID, precompileSuffix)).Hex()
}
