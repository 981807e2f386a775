package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/petpals/internal/geo"
	"github.com/HammerMeetNail/petpals/internal/models"
)

type MatchServiceInterface interface {
	ListAcceptedMatches(ctx context.Context, userPetIDs []uuid.UUID) ([]models.ResolvedMatch, error)
	ListAcceptedMatchesForUser(ctx context.Context, userID uuid.UUID) ([]models.ResolvedMatch, error)
	FindMatchID(ctx context.Context, userID, candidatePetID uuid.UUID) (uuid.UUID, error)
	HasActiveMatch(ctx context.Context, petA, petB uuid.UUID) (bool, error)
	HasAnyActiveMatch(ctx context.Context, petID uuid.UUID) (bool, error)
	CreateOrAcceptMatch(ctx context.Context, initiatorPetID, targetPetID uuid.UUID) (*models.Match, models.MatchOutcome, error)
	DeclineMatch(ctx context.Context, deciderPetID, otherPetID uuid.UUID) (*models.Match, error)
	ExcludedPetIDs(ctx context.Context, userPetIDs []uuid.UUID) ([]uuid.UUID, error)
	MatchForUser(ctx context.Context, userID, matchID uuid.UUID) (*models.Match, error)
	Subscribe(ctx context.Context, userPetIDs []uuid.UUID, onChange func(models.ChangeEvent)) (Subscription, error)
}

type DiscoveryServiceInterface interface {
	BuildCandidateQueue(ctx context.Context, userID uuid.UUID, userPetIDs, excludedPetIDs []uuid.UUID, requester *geo.Point) (Queue, error)
	BuildForUser(ctx context.Context, userID uuid.UUID, requester *geo.Point) (Queue, error)
}

type MessageServiceInterface interface {
	ListMessages(ctx context.Context, matchID uuid.UUID) ([]models.Message, error)
	Append(ctx context.Context, matchID, senderID uuid.UUID, content string) (*models.Message, error)
	NotifyDeletion(ctx context.Context, petID uuid.UUID, matchIDs []uuid.UUID) ([]models.Message, error)
	Subscribe(ctx context.Context, matchID uuid.UUID, onChange func(models.ChangeEvent)) (Subscription, error)
}

type PetServiceInterface interface {
	Create(ctx context.Context, ownerID uuid.UUID, input models.PetInput) (*models.Pet, error)
	Update(ctx context.Context, ownerID, petID uuid.UUID, input models.PetInput) (*models.Pet, error)
	Get(ctx context.Context, petID uuid.UUID) (*models.Pet, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Pet, error)
	PetIDsForOwner(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error)
	RequestDelete(ctx context.Context, ownerID, petID uuid.UUID, force bool) (*models.PetDeletion, error)
	Subscribe(ctx context.Context, ownerID uuid.UUID, onChange func(models.ChangeEvent)) (Subscription, error)
}

type ProfileServiceInterface interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	Ensure(ctx context.Context, id uuid.UUID, fullName string) (*models.Profile, error)
	UpdateName(ctx context.Context, id uuid.UUID, fullName string) (*models.Profile, error)
}

var (
	_ MatchServiceInterface     = (*MatchService)(nil)
	_ DiscoveryServiceInterface = (*DiscoveryService)(nil)
	_ MessageServiceInterface   = (*MessageService)(nil)
	_ PetServiceInterface       = (*PetService)(nil)
	_ ProfileServiceInterface   = (*ProfileService)(nil)
	_ ChangeFeed                = (*RedisFeed)(nil)
	_ ChangeFeed                = (*MemoryFeed)(nil)
	_ DB                        = (*TimeoutDB)(nil)
	_ TokenVerifier             = (*OIDCVerifier)(nil)
)
