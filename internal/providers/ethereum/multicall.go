package ethereum

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// Multicall3 aggregate3((address target, bool allowFailure, bytes callData)[]) returns ((bool success, bytes returnData)[])
	multicall3ABIJSON = `[{"inputs":[{"components":[{"internalType":"address","name":"target","type":"address"},{"internalType":"bool","name":"allowFailure","type":"bool"},{"internalType":"bytes","name":"callData","type":"bytes"}],"internalType":"struct Multicall3.Call3[]","name":"calls","type":"tuple[]"}],"name":"aggregate3","outputs":[{"components":[{"internalType":"bool","name":"success","type":"bool"},{"internalType":"bytes","name":"returnData","type":"bytes"}],"internalType":"struct Multicall3.Result[]","name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"}]`

	// ERC721 ownerOf(uint256) returns (address)
	erc721ABIJSON = `[{"constant":true,"inputs":[{"name":"tokenId","type":"uint256"}],"name":"ownerOf","outputs":[{"name":"","type":"address"}],"payable":false,"stateMutability":"view","type":"function"}]`

	// ERC1155 balanceOfBatch(address[], uint256[]) returns (uint256[])
	erc1155ABIJSON = `[{"inputs":[{"name":"accounts","type":"address[]"},{"name":"ids","type":"uint256[]"}],"name":"balanceOfBatch","outputs":[{"name":"","type":"uint256[]"}],"stateMutability":"view","type":"function"}]`
)

var (
	multicall3ABI = mustParseABI(multicall3ABIJSON)
	erc721ABI     = mustParseABI(erc721ABIJSON)
	erc1155ABI    = mustParseABI(erc1155ABIJSON)
)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ABI: %v", err))
	}
	return parsed
}

// Call is one read-only contract call of a batch
type Call struct {
	Target string
	Data   []byte
}

// CallResult is the outcome of one call of a batch.
// Success is false when the call reverted; ReturnData is then the revert payload.
type CallResult struct {
	Success    bool
	ReturnData []byte
}

// multicall3Call mirrors the Multicall3.Call3 tuple
type multicall3Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// multicall3Result mirrors the Multicall3.Result tuple
type multicall3Result struct {
	Success    bool
	ReturnData []byte
}

// packAggregate3 encodes calls into one aggregate3 call that tolerates per-call failure
func packAggregate3(calls []Call) ([]byte, error) {
	args := make([]multicall3Call, len(calls))
	for i, call := range calls {
		if !common.IsHexAddress(call.Target) {
			return nil, fmt.Errorf("invalid call target: %s", call.Target)
		}
		args[i] = multicall3Call{
			Target:       common.HexToAddress(call.Target),
			AllowFailure: true,
			CallData:     call.Data,
		}
	}

	data, err := multicall3ABI.Pack("aggregate3", args)
	if err != nil {
		return nil, fmt.Errorf("failed to pack aggregate3: %w", err)
	}
	return data, nil
}

// unpackAggregate3 decodes the aggregate3 return data
func unpackAggregate3(data []byte) ([]CallResult, error) {
	var results []multicall3Result
	if err := multicall3ABI.UnpackIntoInterface(&results, "aggregate3", data); err != nil {
		return nil, fmt.Errorf("failed to unpack aggregate3: %w", err)
	}

	out := make([]CallResult, len(results))
	for i, r := range results {
		out[i] = CallResult{Success: r.Success, ReturnData: r.ReturnData}
	}
	return out, nil
}

// OwnerOfCall builds the ownerOf(tokenId) call of an ERC721 contract
func OwnerOfCall(contractAddress string, tokenID *big.Int) (Call, error) {
	data, err := erc721ABI.Pack("ownerOf", tokenID)
	if err != nil {
		return Call{}, fmt.Errorf("failed to pack ownerOf: %w", err)
	}
	return Call{Target: contractAddress, Data: data}, nil
}

// DecodeOwnerOf decodes the owner of an ownerOf call.
// It returns false when the call failed or returned nothing decodable.
func DecodeOwnerOf(result CallResult) (string, bool) {
	if !result.Success || len(result.ReturnData) == 0 {
		return "", false
	}

	var owner common.Address
	if err := erc721ABI.UnpackIntoInterface(&owner, "ownerOf", result.ReturnData); err != nil {
		return "", false
	}
	return owner.Hex(), true
}

// BalanceOfBatchCall builds the balanceOfBatch call reading the balances of one owner for every token id
func BalanceOfBatchCall(contractAddress, owner string, tokenIDs []*big.Int) (Call, error) {
	if !common.IsHexAddress(owner) {
		return Call{}, fmt.Errorf("invalid owner address: %s", owner)
	}

	accounts := make([]common.Address, len(tokenIDs))
	for i := range accounts {
		accounts[i] = common.HexToAddress(owner)
	}

	data, err := erc1155ABI.Pack("balanceOfBatch", accounts, tokenIDs)
	if err != nil {
		return Call{}, fmt.Errorf("failed to pack balanceOfBatch: %w", err)
	}
	return Call{Target: contractAddress, Data: data}, nil
}

// DecodeBalanceOfBatch decodes the balances of a balanceOfBatch call.
// It returns false when the call failed or the result does not hold n balances.
func DecodeBalanceOfBatch(result CallResult, n int) ([]*big.Int, bool) {
	if !result.Success || len(result.ReturnData) == 0 {
		return nil, false
	}

	var balances []*big.Int
	if err := erc1155ABI.UnpackIntoInterface(&balances, "balanceOfBatch", result.ReturnData); err != nil {
		return nil, false
	}
	if len(balances) != n {
		return nil, false
	}
	return balances, true
}
