package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/store"
)

// Progress is the resumable position of one reconciliation run
type Progress struct {
	RunID  string           `json:"runId"`
	Kind   domain.TokenKind `json:"kind"`
	Offset uint64           `json:"offset"`
	Total  uint64           `json:"total"`
}

func progressKey(contractAddress string) string {
	return domain.RECONCILE_PROGRESS_KEY_BASE + contractAddress
}

// loadProgress returns the stored progress of the contract, or a fresh run when
// none is stored or the stored one belongs to another kind
func loadProgress(ctx context.Context, st store.Store, contractAddress string, kind domain.TokenKind) (Progress, bool, error) {
	value, err := st.GetKeyValue(ctx, progressKey(contractAddress))
	if err != nil {
		return Progress{}, false, fmt.Errorf("failed to get reconcile progress: %w", err)
	}

	if value != "" {
		var p Progress
		if err := json.Unmarshal([]byte(value), &p); err == nil && p.Kind == kind && p.RunID != "" {
			return p, true, nil
		}
	}

	return Progress{RunID: ulid.Make().String(), Kind: kind}, false, nil
}

func saveProgress(ctx context.Context, st store.Store, contractAddress string, p Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal reconcile progress: %w", err)
	}
	if err := st.SetKeyValue(ctx, progressKey(contractAddress), string(data)); err != nil {
		return fmt.Errorf("failed to save reconcile progress: %w", err)
	}
	return nil
}

func clearProgress(ctx context.Context, st store.Store, contractAddress string) error {
	if err := st.DeleteKeyValue(ctx, progressKey(contractAddress)); err != nil {
		return fmt.Errorf("failed to clear reconcile progress: %w", err)
	}
	return nil
}

func holdersKey(contractAddress string) string {
	return domain.RECONCILE_HOLDERS_KEY_BASE + contractAddress
}

// loadHolders returns the holder list a balance run iterates, nil when none is stored
func loadHolders(ctx context.Context, st store.Store, contractAddress string) ([]string, error) {
	value, err := st.GetKeyValue(ctx, holdersKey(contractAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to get reconcile holders: %w", err)
	}
	if value == "" {
		return nil, nil
	}

	var holders []string
	if err := json.Unmarshal([]byte(value), &holders); err != nil {
		return nil, nil
	}
	return holders, nil
}

func saveHolders(ctx context.Context, st store.Store, contractAddress string, holders []string) error {
	data, err := json.Marshal(holders)
	if err != nil {
		return fmt.Errorf("failed to marshal reconcile holders: %w", err)
	}
	if err := st.SetKeyValue(ctx, holdersKey(contractAddress), string(data)); err != nil {
		return fmt.Errorf("failed to save reconcile holders: %w", err)
	}
	return nil
}

func clearHolders(ctx context.Context, st store.Store, contractAddress string) error {
	if err := st.DeleteKeyValue(ctx, holdersKey(contractAddress)); err != nil {
		return fmt.Errorf("failed to clear reconcile holders: %w", err)
	}
	return nil
}
