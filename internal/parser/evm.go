package parser

import (
	"fmt"
	"math/big"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
)

func parseUint(name, value string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid %s %q", domain.ErrMalformedEvent, name, value)
	}
	return v, nil
}

func evmDelta(tx domain.EvmTransaction, log domain.EvmLogEvent, tokenID *big.Int) domain.OwnershipDelta {
	return domain.OwnershipDelta{
		Kind:            log.Type.Kind(),
		ContractAddress: domain.NormalizeAddress(log.Address),
		TokenID:         tokenID.String(),
		Order:           tx.OrderingKey(),
		Provenance: domain.Provenance{
			BlockNumber:     tx.BlockNumber,
			TransactionHash: tx.Hash,
			Timestamp:       tx.Timestamp,
		},
	}
}

// balanceMove returns the debit of from and the credit of to for one token.
// Mints (from the zero address) and burns (to the zero address) keep a single side.
func balanceMove(tx domain.EvmTransaction, log domain.EvmLogEvent, tokenID, amount *big.Int) []domain.OwnershipDelta {
	if amount.Sign() == 0 {
		return nil
	}

	var deltas []domain.OwnershipDelta
	if !domain.IsZeroAddress(log.To) {
		credit := evmDelta(tx, log, tokenID)
		credit.Owner = domain.NormalizeAddress(log.To)
		credit.Amount = new(big.Int).Set(amount)
		deltas = append(deltas, credit)
	}
	if !domain.IsZeroAddress(log.From) {
		debit := evmDelta(tx, log, tokenID)
		debit.Owner = domain.NormalizeAddress(log.From)
		debit.Amount = new(big.Int).Neg(amount)
		deltas = append(deltas, debit)
	}
	return deltas
}

func parseERC721Transfer(tx domain.EvmTransaction, log domain.EvmLogEvent) ([]domain.OwnershipDelta, error) {
	tokenID, err := parseUint("tokenId", log.TokenID)
	if err != nil {
		return nil, err
	}

	d := evmDelta(tx, log, tokenID)
	if domain.IsZeroAddress(log.To) {
		d.Delete = true
	} else {
		d.Owner = domain.NormalizeAddress(log.To)
	}
	return []domain.OwnershipDelta{d}, nil
}

func parseERC1155TransferSingle(tx domain.EvmTransaction, log domain.EvmLogEvent) ([]domain.OwnershipDelta, error) {
	tokenID, err := parseUint("tokenId", log.TokenID)
	if err != nil {
		return nil, err
	}
	amount, err := parseUint("value", log.Value)
	if err != nil {
		return nil, err
	}
	return balanceMove(tx, log, tokenID, amount), nil
}

func parseERC1155TransferBatch(tx domain.EvmTransaction, log domain.EvmLogEvent) ([]domain.OwnershipDelta, error) {
	if len(log.IDs) != len(log.Values) {
		return nil, fmt.Errorf("%w: %d ids with %d values", domain.ErrMalformedEvent, len(log.IDs), len(log.Values))
	}

	var deltas []domain.OwnershipDelta
	for i := range log.IDs {
		tokenID, err := parseUint("ids", log.IDs[i])
		if err != nil {
			return nil, err
		}
		amount, err := parseUint("values", log.Values[i])
		if err != nil {
			return nil, err
		}
		deltas = append(deltas, balanceMove(tx, log, tokenID, amount)...)
	}
	return deltas, nil
}
