package parser

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
)

// nativeArgs is the union of the argument names used by nft/sft pallet events
type nativeArgs struct {
	CollectionID    Number    `json:"collectionId"`
	Start           Number    `json:"start"`
	End             Number    `json:"end"`
	Owner           string    `json:"owner"`
	NewOwner        string    `json:"newOwner"`
	PreviousOwner   string    `json:"previousOwner"`
	TokenOwner      string    `json:"tokenOwner"`
	SerialNumber    Number    `json:"serialNumber"`
	SerialNumbers   []Number  `json:"serialNumbers"`
	Balances        []Number  `json:"balances"`
	TokenID         tokenPair `json:"tokenId"`
	InitialIssuance Number    `json:"initialIssuance"`
}

func decodeNativeArgs(event domain.Event) (nativeArgs, error) {
	var args nativeArgs
	if len(event.Args) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(event.Args, &args); err != nil {
		return args, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	return args, nil
}

func requireCollectionID(args nativeArgs) (uint32, error) {
	id, err := args.CollectionID.Uint32()
	if err != nil {
		return 0, fmt.Errorf("%w: collectionId: %v", domain.ErrMalformedEvent, err)
	}
	return id, nil
}

func requireAddress(name, value string) (string, error) {
	if value == "" {
		return "", fmt.Errorf("%w: missing %s", domain.ErrMalformedEvent, name)
	}
	return domain.NormalizeAddress(value), nil
}

// nativeDelta builds the delta skeleton of a native event for one token
func nativeDelta(event domain.Event, kind domain.TokenKind, collectionID uint32, tokenID *big.Int) domain.OwnershipDelta {
	id := collectionID
	return domain.OwnershipDelta{
		Kind:            kind,
		ContractAddress: domain.CollectionIDToAddress(kind, collectionID),
		CollectionID:    &id,
		TokenID:         tokenID.String(),
		Order:           event.OrderingKey(),
		Provenance: domain.Provenance{
			BlockNumber: event.BlockNumber,
			EventID:     event.EventID,
			Timestamp:   event.Timestamp,
		},
	}
}

// singleOwnerDeltas sets owner on every serial number; a transfer to the zero address removes the token
func singleOwnerDeltas(event domain.Event, collectionID uint32, serials []Number, owner string) []domain.OwnershipDelta {
	deltas := make([]domain.OwnershipDelta, 0, len(serials))
	for _, serial := range serials {
		if !serial.IsSet() {
			continue
		}
		d := nativeDelta(event, domain.TokenKindSingle, collectionID, serial.Int)
		if domain.IsZeroAddress(owner) {
			d.Delete = true
		} else {
			d.Owner = owner
		}
		deltas = append(deltas, d)
	}
	return deltas
}

// balanceOf returns balances[i], zero when the list is shorter than the serial list
func balanceOf(balances []Number, i int) *big.Int {
	if i >= len(balances) || !balances[i].IsSet() {
		return new(big.Int)
	}
	return new(big.Int).Set(balances[i].Int)
}

func parseNftMint(event domain.Event) ([]domain.OwnershipDelta, error) {
	args, err := decodeNativeArgs(event)
	if err != nil {
		return nil, err
	}
	collectionID, err := requireCollectionID(args)
	if err != nil {
		return nil, err
	}
	owner, err := requireAddress("owner", args.Owner)
	if err != nil {
		return nil, err
	}
	if !args.Start.IsSet() || !args.End.IsSet() {
		return nil, fmt.Errorf("%w: missing start/end", domain.ErrMalformedEvent)
	}
	if args.End.Cmp(args.Start.Int) < 0 {
		return nil, nil
	}
	count := new(big.Int).Sub(args.End.Int, args.Start.Int)
	if count.Cmp(big.NewInt(domain.MAX_NFT_MINT_RANGE)) >= 0 {
		return nil, fmt.Errorf("%w: mint range %s..%s exceeds %d tokens",
			domain.ErrMalformedEvent, args.Start.Int, args.End.Int, domain.MAX_NFT_MINT_RANGE)
	}

	deltas := make([]domain.OwnershipDelta, 0, count.Int64()+1)
	one := big.NewInt(1)
	for id := new(big.Int).Set(args.Start.Int); id.Cmp(args.End.Int) <= 0; id.Add(id, one) {
		d := nativeDelta(event, domain.TokenKindSingle, collectionID, id)
		d.Owner = owner
		deltas = append(deltas, d)
	}
	return deltas, nil
}

func parseNftTransfer(event domain.Event) ([]domain.OwnershipDelta, error) {
	args, err := decodeNativeArgs(event)
	if err != nil {
		return nil, err
	}
	if len(args.SerialNumbers) == 0 {
		return nil, nil
	}
	collectionID, err := requireCollectionID(args)
	if err != nil {
		return nil, err
	}
	newOwner, err := requireAddress("newOwner", args.NewOwner)
	if err != nil {
		return nil, err
	}
	return singleOwnerDeltas(event, collectionID, args.SerialNumbers, newOwner), nil
}

func parseNftBridgedMint(event domain.Event) ([]domain.OwnershipDelta, error) {
	args, err := decodeNativeArgs(event)
	if err != nil {
		return nil, err
	}
	if len(args.SerialNumbers) == 0 {
		return nil, nil
	}
	collectionID, err := requireCollectionID(args)
	if err != nil {
		return nil, err
	}
	owner, err := requireAddress("owner", args.Owner)
	if err != nil {
		return nil, err
	}
	return singleOwnerDeltas(event, collectionID, args.SerialNumbers, owner), nil
}

func parseNftBurn(event domain.Event) ([]domain.OwnershipDelta, error) {
	args, err := decodeNativeArgs(event)
	if err != nil {
		return nil, err
	}
	serials := args.SerialNumbers
	if args.SerialNumber.IsSet() {
		serials = append(serials, args.SerialNumber)
	}
	if len(serials) == 0 {
		return nil, nil
	}
	collectionID, err := requireCollectionID(args)
	if err != nil {
		return nil, err
	}
	return singleOwnerDeltas(event, collectionID, serials, domain.ETHEREUM_ZERO_ADDRESS), nil
}

func parseSftTokenCreate(event domain.Event) ([]domain.OwnershipDelta, error) {
	args, err := decodeNativeArgs(event)
	if err != nil {
		return nil, err
	}
	if !args.TokenID[0].IsSet() || !args.TokenID[1].IsSet() {
		return nil, fmt.Errorf("%w: missing tokenId", domain.ErrMalformedEvent)
	}
	collectionID, err := args.TokenID[0].Uint32()
	if err != nil {
		return nil, fmt.Errorf("%w: tokenId: %v", domain.ErrMalformedEvent, err)
	}
	owner, err := requireAddress("tokenOwner", args.TokenOwner)
	if err != nil {
		return nil, err
	}

	d := nativeDelta(event, domain.TokenKindBalance, collectionID, args.TokenID[1].Int)
	d.Owner = owner
	d.Amount = new(big.Int)
	if args.InitialIssuance.IsSet() {
		d.Amount.Set(args.InitialIssuance.Int)
	}
	return []domain.OwnershipDelta{d}, nil
}

func parseSftMint(event domain.Event) ([]domain.OwnershipDelta, error) {
	args, err := decodeNativeArgs(event)
	if err != nil {
		return nil, err
	}
	if len(args.SerialNumbers) == 0 {
		return nil, nil
	}
	collectionID, err := requireCollectionID(args)
	if err != nil {
		return nil, err
	}
	owner, err := requireAddress("owner", args.Owner)
	if err != nil {
		return nil, err
	}

	deltas := make([]domain.OwnershipDelta, 0, len(args.SerialNumbers))
	for i, serial := range args.SerialNumbers {
		if !serial.IsSet() {
			continue
		}
		d := nativeDelta(event, domain.TokenKindBalance, collectionID, serial.Int)
		d.Owner = owner
		d.Amount = balanceOf(args.Balances, i)
		deltas = append(deltas, d)
	}
	return deltas, nil
}

func parseSftTransfer(event domain.Event) ([]domain.OwnershipDelta, error) {
	args, err := decodeNativeArgs(event)
	if err != nil {
		return nil, err
	}
	if len(args.SerialNumbers) == 0 {
		return nil, nil
	}
	collectionID, err := requireCollectionID(args)
	if err != nil {
		return nil, err
	}
	newOwner, err := requireAddress("newOwner", args.NewOwner)
	if err != nil {
		return nil, err
	}
	previousOwner, err := requireAddress("previousOwner", args.PreviousOwner)
	if err != nil {
		return nil, err
	}

	deltas := make([]domain.OwnershipDelta, 0, 2*len(args.SerialNumbers))
	for i, serial := range args.SerialNumbers {
		amount := balanceOf(args.Balances, i)
		if !serial.IsSet() || amount.Sign() <= 0 {
			continue
		}

		credit := nativeDelta(event, domain.TokenKindBalance, collectionID, serial.Int)
		credit.Owner = newOwner
		credit.Amount = amount

		debit := nativeDelta(event, domain.TokenKindBalance, collectionID, serial.Int)
		debit.Owner = previousOwner
		debit.Amount = new(big.Int).Neg(amount)

		deltas = append(deltas, credit, debit)
	}
	return deltas, nil
}

func parseSftBurn(event domain.Event) ([]domain.OwnershipDelta, error) {
	args, err := decodeNativeArgs(event)
	if err != nil {
		return nil, err
	}
	if len(args.SerialNumbers) == 0 {
		return nil, nil
	}
	collectionID, err := requireCollectionID(args)
	if err != nil {
		return nil, err
	}
	owner, err := requireAddress("owner", args.Owner)
	if err != nil {
		return nil, err
	}

	deltas := make([]domain.OwnershipDelta, 0, len(args.SerialNumbers))
	for i, serial := range args.SerialNumbers {
		amount := balanceOf(args.Balances, i)
		if !serial.IsSet() || amount.Sign() <= 0 {
			continue
		}
		d := nativeDelta(event, domain.TokenKindBalance, collectionID, serial.Int)
		d.Owner = owner
		d.Amount = amount.Neg(amount)
		deltas = append(deltas, d)
	}
	return deltas, nil
}
