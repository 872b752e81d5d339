package store

import (
	"encoding/json"
	"fmt"
	"math/big"

	"gorm.io/datatypes"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/store/schema"
)

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func collectionIDToColumn(id *uint32) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}

func collectionIDFromColumn(id *int64) *uint32 {
	if id == nil {
		return nil
	}
	v := uint32(*id) //nolint:gosec,G115
	return &v
}

func amountToColumn(amount *big.Int) *string {
	if amount == nil {
		return nil
	}
	s := amount.String()
	return &s
}

func amountFromColumn(amount *string) (*big.Int, error) {
	if amount == nil {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(*amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", *amount)
	}
	return v, nil
}

// metadataToColumn maps unknown metadata to NULL and empty metadata to {}
func metadataToColumn(metadata *domain.Metadata) (datatypes.JSON, error) {
	if metadata == nil {
		return nil, nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return datatypes.JSON(b), nil
}

func metadataFromColumn(raw datatypes.JSON) (*domain.Metadata, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var metadata domain.Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if metadata.IsEmpty() {
		return nil, nil
	}
	return &metadata, nil
}

func toNftOwnerRow(record domain.OwnershipRecord) (schema.NftOwner, error) {
	metadata, err := metadataToColumn(record.Metadata)
	if err != nil {
		return schema.NftOwner{}, err
	}

	row := schema.NftOwner{
		Kind:            string(record.Kind),
		ContractAddress: record.ContractAddress,
		CollectionID:    collectionIDToColumn(record.CollectionID),
		TokenID:         record.TokenID,
		Owner:           record.Owner,
		Metadata:        metadata,
		BlockNumber:     int64(record.BlockNumber), //nolint:gosec,G115
		EventID:         optionalString(record.EventID),
		TransactionHash: optionalString(record.TransactionHash),
		Timestamp:       record.Timestamp,
	}
	if record.Kind == domain.TokenKindBalance {
		row.Amount = amountToColumn(record.Amount)
	}

	return row, nil
}

func fromNftOwnerRow(row schema.NftOwner) (domain.OwnershipRecord, error) {
	amount, err := amountFromColumn(row.Amount)
	if err != nil {
		return domain.OwnershipRecord{}, err
	}
	metadata, err := metadataFromColumn(row.Metadata)
	if err != nil {
		return domain.OwnershipRecord{}, err
	}

	return domain.OwnershipRecord{
		Kind:            domain.TokenKind(row.Kind),
		ContractAddress: row.ContractAddress,
		CollectionID:    collectionIDFromColumn(row.CollectionID),
		TokenID:         row.TokenID,
		Owner:           row.Owner,
		Amount:          amount,
		Metadata:        metadata,
		Provenance: domain.Provenance{
			BlockNumber:     uint64(row.BlockNumber), //nolint:gosec,G115
			EventID:         derefString(row.EventID),
			TransactionHash: derefString(row.TransactionHash),
			Timestamp:       row.Timestamp,
		},
	}, nil
}

func toEventRow(event domain.Event) schema.Event {
	return schema.Event{
		EventID:     event.EventID,
		BlockNumber: int64(event.BlockNumber), //nolint:gosec,G115
		EventIndex:  int64(event.EventIndex),  //nolint:gosec,G115
		Section:     event.Section,
		Method:      event.Method,
		Args:        datatypes.JSON(event.Args),
		Timestamp:   event.Timestamp,
		Processed:   event.Processed,
	}
}

func fromEventRow(row schema.Event) domain.Event {
	return domain.Event{
		EventID:     row.EventID,
		BlockNumber: uint64(row.BlockNumber), //nolint:gosec,G115
		EventIndex:  uint64(row.EventIndex),  //nolint:gosec,G115
		Section:     row.Section,
		Method:      row.Method,
		Args:        json.RawMessage(row.Args),
		Timestamp:   row.Timestamp,
		Processed:   row.Processed,
	}
}

func toEvmTransactionRow(tx domain.EvmTransaction) schema.EvmTransaction {
	return schema.EvmTransaction{
		Hash:             tx.Hash,
		BlockNumber:      int64(tx.BlockNumber),      //nolint:gosec,G115
		TransactionIndex: int64(tx.TransactionIndex), //nolint:gosec,G115
		Timestamp:        tx.Timestamp,
		Events:           schema.EvmLogEvents(tx.Events),
		Processed:        tx.Processed,
	}
}

func fromEvmTransactionRow(row schema.EvmTransaction) domain.EvmTransaction {
	return domain.EvmTransaction{
		Hash:             row.Hash,
		BlockNumber:      uint64(row.BlockNumber),      //nolint:gosec,G115
		TransactionIndex: uint64(row.TransactionIndex), //nolint:gosec,G115
		Timestamp:        row.Timestamp,
		Events:           []domain.EvmLogEvent(row.Events),
		Processed:        row.Processed,
	}
}

func toCollectionRow(collection domain.Collection) schema.Collection {
	row := schema.Collection{
		ContractAddress: collection.ContractAddress,
		Kind:            string(collection.Kind),
		CollectionID:    collectionIDToColumn(collection.CollectionID),
		Name:            collection.Name,
	}
	if collection.TotalSupply != nil {
		supply := int64(*collection.TotalSupply) //nolint:gosec,G115
		row.TotalSupply = &supply
	}
	return row
}

func fromCollectionRow(row schema.Collection) domain.Collection {
	collection := domain.Collection{
		ContractAddress: row.ContractAddress,
		Kind:            domain.TokenKind(row.Kind),
		CollectionID:    collectionIDFromColumn(row.CollectionID),
		Name:            row.Name,
	}
	if row.TotalSupply != nil {
		supply := uint64(*row.TotalSupply) //nolint:gosec,G115
		collection.TotalSupply = &supply
	}
	return collection
}
