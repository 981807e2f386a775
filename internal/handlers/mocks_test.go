package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/petpals/internal/geo"
	"github.com/HammerMeetNail/petpals/internal/models"
	"github.com/HammerMeetNail/petpals/internal/services"
)

func assertErrorResponse(t *testing.T, rr *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d (body: %s)", status, rr.Code, rr.Body.String())
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Error != message {
		t.Fatalf("expected error %q, got %q", message, resp.Error)
	}
}

type mockPetService struct {
	services.PetServiceInterface
	CreateFunc         func(ctx context.Context, ownerID uuid.UUID, input models.PetInput) (*models.Pet, error)
	UpdateFunc         func(ctx context.Context, ownerID, petID uuid.UUID, input models.PetInput) (*models.Pet, error)
	GetFunc            func(ctx context.Context, petID uuid.UUID) (*models.Pet, error)
	ListByOwnerFunc    func(ctx context.Context, ownerID uuid.UUID) ([]models.Pet, error)
	PetIDsForOwnerFunc func(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error)
	RequestDeleteFunc  func(ctx context.Context, ownerID, petID uuid.UUID, force bool) (*models.PetDeletion, error)
	SubscribeFunc      func(ctx context.Context, ownerID uuid.UUID, onChange func(models.ChangeEvent)) (services.Subscription, error)
}

func (m *mockPetService) Create(ctx context.Context, ownerID uuid.UUID, input models.PetInput) (*models.Pet, error) {
	return m.CreateFunc(ctx, ownerID, input)
}

func (m *mockPetService) Update(ctx context.Context, ownerID, petID uuid.UUID, input models.PetInput) (*models.Pet, error) {
	return m.UpdateFunc(ctx, ownerID, petID, input)
}

func (m *mockPetService) Get(ctx context.Context, petID uuid.UUID) (*models.Pet, error) {
	return m.GetFunc(ctx, petID)
}

func (m *mockPetService) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Pet, error) {
	return m.ListByOwnerFunc(ctx, ownerID)
}

func (m *mockPetService) PetIDsForOwner(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error) {
	return m.PetIDsForOwnerFunc(ctx, ownerID)
}

func (m *mockPetService) RequestDelete(ctx context.Context, ownerID, petID uuid.UUID, force bool) (*models.PetDeletion, error) {
	return m.RequestDeleteFunc(ctx, ownerID, petID, force)
}

func (m *mockPetService) Subscribe(ctx context.Context, ownerID uuid.UUID, onChange func(models.ChangeEvent)) (services.Subscription, error) {
	return m.SubscribeFunc(ctx, ownerID, onChange)
}

type mockMatchService struct {
	services.MatchServiceInterface
	CreateOrAcceptMatchFunc        func(ctx context.Context, initiatorPetID, targetPetID uuid.UUID) (*models.Match, models.MatchOutcome, error)
	DeclineMatchFunc               func(ctx context.Context, deciderPetID, otherPetID uuid.UUID) (*models.Match, error)
	ListAcceptedMatchesForUserFunc func(ctx context.Context, userID uuid.UUID) ([]models.ResolvedMatch, error)
	FindMatchIDFunc                func(ctx context.Context, userID, candidatePetID uuid.UUID) (uuid.UUID, error)
	MatchForUserFunc               func(ctx context.Context, userID, matchID uuid.UUID) (*models.Match, error)
	SubscribeFunc                  func(ctx context.Context, userPetIDs []uuid.UUID, onChange func(models.ChangeEvent)) (services.Subscription, error)
}

func (m *mockMatchService) CreateOrAcceptMatch(ctx context.Context, initiatorPetID, targetPetID uuid.UUID) (*models.Match, models.MatchOutcome, error) {
	return m.CreateOrAcceptMatchFunc(ctx, initiatorPetID, targetPetID)
}

func (m *mockMatchService) DeclineMatch(ctx context.Context, deciderPetID, otherPetID uuid.UUID) (*models.Match, error) {
	return m.DeclineMatchFunc(ctx, deciderPetID, otherPetID)
}

func (m *mockMatchService) ListAcceptedMatchesForUser(ctx context.Context, userID uuid.UUID) ([]models.ResolvedMatch, error) {
	return m.ListAcceptedMatchesForUserFunc(ctx, userID)
}

func (m *mockMatchService) FindMatchID(ctx context.Context, userID, candidatePetID uuid.UUID) (uuid.UUID, error) {
	return m.FindMatchIDFunc(ctx, userID, candidatePetID)
}

func (m *mockMatchService) MatchForUser(ctx context.Context, userID, matchID uuid.UUID) (*models.Match, error) {
	return m.MatchForUserFunc(ctx, userID, matchID)
}

func (m *mockMatchService) Subscribe(ctx context.Context, userPetIDs []uuid.UUID, onChange func(models.ChangeEvent)) (services.Subscription, error) {
	return m.SubscribeFunc(ctx, userPetIDs, onChange)
}

type mockMessageService struct {
	services.MessageServiceInterface
	ListMessagesFunc func(ctx context.Context, matchID uuid.UUID) ([]models.Message, error)
	AppendFunc       func(ctx context.Context, matchID, senderID uuid.UUID, content string) (*models.Message, error)
	SubscribeFunc    func(ctx context.Context, matchID uuid.UUID, onChange func(models.ChangeEvent)) (services.Subscription, error)
}

func (m *mockMessageService) ListMessages(ctx context.Context, matchID uuid.UUID) ([]models.Message, error) {
	return m.ListMessagesFunc(ctx, matchID)
}

func (m *mockMessageService) Append(ctx context.Context, matchID, senderID uuid.UUID, content string) (*models.Message, error) {
	return m.AppendFunc(ctx, matchID, senderID, content)
}

func (m *mockMessageService) Subscribe(ctx context.Context, matchID uuid.UUID, onChange func(models.ChangeEvent)) (services.Subscription, error) {
	return m.SubscribeFunc(ctx, matchID, onChange)
}

type mockProfileService struct {
	services.ProfileServiceInterface
	GetFunc        func(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	UpdateNameFunc func(ctx context.Context, id uuid.UUID, fullName string) (*models.Profile, error)
}

func (m *mockProfileService) Get(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return m.GetFunc(ctx, id)
}

func (m *mockProfileService) UpdateName(ctx context.Context, id uuid.UUID, fullName string) (*models.Profile, error) {
	return m.UpdateNameFunc(ctx, id, fullName)
}

type mockDiscoveryService struct {
	services.DiscoveryServiceInterface
	BuildForUserFunc func(ctx context.Context, userID uuid.UUID, requester *geo.Point) (services.Queue, error)
}

func (m *mockDiscoveryService) BuildForUser(ctx context.Context, userID uuid.UUID, requester *geo.Point) (services.Queue, error) {
	return m.BuildForUserFunc(ctx, userID, requester)
}

type stubSubscription struct {
	unsubscribed chan struct{}
}

func newStubSubscription() *stubSubscription {
	return &stubSubscription{unsubscribed: make(chan struct{})}
}

func (s *stubSubscription) Unsubscribe() error {
	select {
	case <-s.unsubscribed:
	default:
		close(s.unsubscribed)
	}
	return nil
}
