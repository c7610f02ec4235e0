package services

import (
	"context"
	"log"
	"time"

	"connectsprobot/internal/repositories"
)

// CleanupService enforces message retention. Only messages are swept;
// owner and user records are kept indefinitely.
type CleanupService struct {
	msgs      repositories.MessageRepository
	retention time.Duration
}

func NewCleanupService(msgs repositories.MessageRepository, retention time.Duration) *CleanupService {
	return &CleanupService{msgs: msgs, retention: retention}
}

// RunDailyCleanup deletes messages older than the retention window and
// returns how many were removed.
func (s *CleanupService) RunDailyCleanup(ctx context.Context) (int64, error) {
	deleted, err := s.msgs.PurgeOlderThan(ctx, s.retention)
	if err != nil {
		log.Printf("cleanup: message purge failed: %v", err)
		return 0, err
	}
	log.Printf("cleanup: deleted %d old messages", deleted)
	return deleted, nil
}

// RetentionCutoff returns the moment before which messages are purged.
func (s *CleanupService) RetentionCutoff(now time.Time) time.Time {
	return now.Add(-s.retention)
}
