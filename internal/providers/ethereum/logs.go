package ethereum

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
)

// Event signatures
var (
	// Transfer event signature - shared by ERC20 and ERC721
	// ERC20: Transfer(address indexed from, address indexed to, uint256 value) - 3 topics
	// ERC721: Transfer(address indexed from, address indexed to, uint256 indexed tokenId) - 4 topics
	transferEventSignature = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

	// ERC1155 TransferSingle(address indexed operator, address indexed from, address indexed to, uint256 id, uint256 value)
	transferSingleEventSignature = crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)"))

	// ERC1155 TransferBatch(address indexed operator, address indexed from, address indexed to, uint256[] ids, uint256[] values)
	transferBatchEventSignature = crypto.Keccak256Hash([]byte("TransferBatch(address,address,address,uint256[],uint256[])"))
)

// transferTopics selects every token transfer log
var transferTopics = [][]common.Hash{
	{transferEventSignature, transferSingleEventSignature, transferBatchEventSignature},
}

var transferBatchData = func() abi.Arguments {
	uint256Array, err := abi.NewType("uint256[]", "", nil)
	if err != nil {
		panic(fmt.Sprintf("failed to build uint256[] type: %v", err))
	}
	return abi.Arguments{{Name: "ids", Type: uint256Array}, {Name: "values", Type: uint256Array}}
}()

// decodeLog decodes a token transfer log. It returns nil for logs that are not NFT transfers.
func decodeLog(vLog types.Log) (*domain.EvmLogEvent, error) {
	if len(vLog.Topics) == 0 {
		return nil, nil
	}

	event := &domain.EvmLogEvent{
		Address:  vLog.Address.Hex(),
		LogIndex: uint64(vLog.Index),
	}

	switch vLog.Topics[0] {
	case transferEventSignature:
		if len(vLog.Topics) == 3 {
			// ERC20 Transfer - skip as we only index NFTs
			logger.Debug("Skipping ERC20 transfer event",
				zap.String("contract", vLog.Address.Hex()),
				zap.String("txHash", vLog.TxHash.Hex()))
			return nil, nil
		}
		if len(vLog.Topics) != 4 {
			return nil, fmt.Errorf("invalid Transfer event: expected 3 or 4 topics, got %d", len(vLog.Topics))
		}

		event.Type = domain.StandardERC721
		event.EventName = "Transfer"
		event.From = topicAddress(vLog.Topics[1])
		event.To = topicAddress(vLog.Topics[2])
		event.TokenID = new(big.Int).SetBytes(vLog.Topics[3].Bytes()).String()

	case transferSingleEventSignature:
		if len(vLog.Topics) != 4 {
			return nil, fmt.Errorf("invalid ERC1155 TransferSingle event: expected 4 topics, got %d", len(vLog.Topics))
		}
		if len(vLog.Data) < 64 {
			return nil, fmt.Errorf("invalid ERC1155 TransferSingle event: insufficient data")
		}

		event.Type = domain.StandardERC1155
		event.EventName = "TransferSingle"
		event.Operator = topicAddress(vLog.Topics[1])
		event.From = topicAddress(vLog.Topics[2])
		event.To = topicAddress(vLog.Topics[3])
		event.TokenID = new(big.Int).SetBytes(vLog.Data[0:32]).String()
		event.Value = new(big.Int).SetBytes(vLog.Data[32:64]).String()

	case transferBatchEventSignature:
		if len(vLog.Topics) != 4 {
			return nil, fmt.Errorf("invalid ERC1155 TransferBatch event: expected 4 topics, got %d", len(vLog.Topics))
		}

		values, err := transferBatchData.Unpack(vLog.Data)
		if err != nil {
			return nil, fmt.Errorf("invalid ERC1155 TransferBatch event: %w", err)
		}
		ids, okIDs := values[0].([]*big.Int)
		amounts, okAmounts := values[1].([]*big.Int)
		if !okIDs || !okAmounts || len(ids) != len(amounts) {
			return nil, fmt.Errorf("invalid ERC1155 TransferBatch event: mismatched ids and values")
		}

		event.Type = domain.StandardERC1155
		event.EventName = "TransferBatch"
		event.Operator = topicAddress(vLog.Topics[1])
		event.From = topicAddress(vLog.Topics[2])
		event.To = topicAddress(vLog.Topics[3])
		event.IDs = bigIntStrings(ids)
		event.Values = bigIntStrings(amounts)

	default:
		return nil, nil
	}

	return event, nil
}

// groupTransactions groups decoded logs by transaction, ordered by transaction index then log index
func groupTransactions(blockNumber uint64, timestamp uint64, logs []types.Log) ([]domain.EvmTransaction, error) {
	byHash := make(map[common.Hash]*domain.EvmTransaction)
	for _, vLog := range logs {
		if vLog.Removed {
			continue
		}

		event, err := decodeLog(vLog)
		if err != nil {
			return nil, fmt.Errorf("failed to decode log %d of tx %s: %w", vLog.Index, vLog.TxHash.Hex(), err)
		}
		if event == nil {
			continue
		}

		tx, ok := byHash[vLog.TxHash]
		if !ok {
			tx = &domain.EvmTransaction{
				Hash:             vLog.TxHash.Hex(),
				BlockNumber:      blockNumber,
				TransactionIndex: uint64(vLog.TxIndex),
				Timestamp:        blockTime(timestamp),
			}
			byHash[vLog.TxHash] = tx
		}
		tx.Events = append(tx.Events, *event)
	}

	txs := make([]domain.EvmTransaction, 0, len(byHash))
	for _, tx := range byHash {
		sort.Slice(tx.Events, func(i, j int) bool {
			return tx.Events[i].LogIndex < tx.Events[j].LogIndex
		})
		txs = append(txs, *tx)
	}
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].TransactionIndex < txs[j].TransactionIndex
	})

	return txs, nil
}

func topicAddress(topic common.Hash) string {
	return common.BytesToAddress(topic.Bytes()).Hex()
}

func bigIntStrings(values []*big.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.String()
	}
	return out
}
