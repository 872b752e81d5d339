package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
)

// Publisher defines the interface for publishing ownership change notifications
//
//go:generate mockgen -source=publisher.go -destination=../mocks/publisher.go -package=mocks -mock_names=Publisher=MockPublisher
type Publisher interface {
	// PublishOwnershipChange publishes the change summary of one contract
	PublishOwnershipChange(ctx context.Context, change domain.OwnershipChange) error
	// Close closes the connection
	Close()
}

type nopPublisher struct{}

// NewNopPublisher returns a publisher that drops every notification.
// It is used when no broker is configured.
func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) PublishOwnershipChange(context.Context, domain.OwnershipChange) error {
	return nil
}

func (nopPublisher) Close() {}

// PublishChanges publishes every change. Notifications are best effort: the writes they
// describe are already committed, so a failure is logged and the remaining changes still go out.
func PublishChanges(ctx context.Context, p Publisher, changes []domain.OwnershipChange) int {
	published := 0
	for _, change := range changes {
		if err := p.PublishOwnershipChange(ctx, change); err != nil {
			logger.WarnCtx(ctx, "Failed to publish ownership change",
				zap.String("contract", change.ContractAddress),
				zap.Error(err))
			continue
		}
		published++
	}
	return published
}
