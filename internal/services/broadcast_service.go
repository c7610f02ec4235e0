package services

import (
	"context"
	"fmt"
	"log"

	"connectsprobot/internal/repositories"
	"connectsprobot/internal/transport"
)

// Audience selects who receives an admin broadcast.
type Audience string

const (
	AudienceUsers          Audience = "users"
	AudienceOwners         Audience = "owners"
	AudienceDedicatedUsers Audience = "dedicated_users"
)

// BroadcastService fans an admin announcement out over the front door.
// Per-recipient failures are counted, never aborting the batch.
type BroadcastService struct {
	users     repositories.UserRepository
	owners    repositories.OwnerRepository
	frontDoor transport.Transport
}

func NewBroadcastService(users repositories.UserRepository, owners repositories.OwnerRepository, frontDoor transport.Transport) *BroadcastService {
	return &BroadcastService{users: users, owners: owners, frontDoor: frontDoor}
}

// Send delivers text to every member of the audience and reports the
// sent/failed split.
func (s *BroadcastService) Send(ctx context.Context, audience Audience, text string) (sent, failed int, err error) {
	var ids []int64
	switch audience {
	case AudienceUsers:
		ids, err = s.users.ListTelegramIDs(ctx)
	case AudienceOwners:
		ids, err = s.owners.ListTelegramIDs(ctx)
	case AudienceDedicatedUsers:
		ids, err = s.owners.ListDedicatedAudience(ctx)
	default:
		return 0, 0, fmt.Errorf("unknown broadcast audience %q", audience)
	}
	if err != nil {
		return 0, 0, err
	}

	for _, id := range ids {
		if _, sendErr := s.frontDoor.Send(ctx, id, text); sendErr != nil {
			log.Printf("broadcast: send to %d failed: %v", id, sendErr)
			failed++
			continue
		}
		sent++
	}
	log.Printf("broadcast to %s: sent=%d failed=%d", audience, sent, failed)
	return sent, failed, nil
}
