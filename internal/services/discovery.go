package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/HammerMeetNail/petpals/internal/geo"
	"github.com/HammerMeetNail/petpals/internal/models"
)

// Queue is an ordered, immutable list of discovery candidates.
type Queue struct {
	items []models.Candidate
}

func NewQueue(items []models.Candidate) Queue {
	return Queue{items: append([]models.Candidate(nil), items...)}
}

func (q Queue) Len() int {
	return len(q.items)
}

func (q Queue) Empty() bool {
	return len(q.items) == 0
}

func (q Queue) Peek() (models.Candidate, bool) {
	if q.Empty() {
		return models.Candidate{}, false
	}
	return q.items[0], true
}

// Advance splits off the head of the queue. q itself is left unchanged.
// ok is false once the queue is exhausted.
func (q Queue) Advance() (head models.Candidate, rest Queue, ok bool) {
	if q.Empty() {
		return models.Candidate{}, q, false
	}
	return q.items[0], Queue{items: q.items[1:]}, true
}

func (q Queue) Items() []models.Candidate {
	return append([]models.Candidate{}, q.items...)
}

type DiscoveryService struct {
	db      DB
	matches *MatchService
}

func NewDiscoveryService(db DB, matches *MatchService) *DiscoveryService {
	return &DiscoveryService{db: db, matches: matches}
}

// BuildCandidateQueue returns pets userID may still be shown: not their own
// and not in excludedPetIDs. With a requester location the queue is ordered
// nearest first, and pets without a location follow in creation order.
func (s *DiscoveryService) BuildCandidateQueue(ctx context.Context, userID uuid.UUID, userPetIDs, excludedPetIDs []uuid.UUID, requester *geo.Point) (Queue, error) {
	if requester != nil && !requester.Valid() {
		return Queue{}, newValidationError("location", "latitude must be within [-90, 90] and longitude within [-180, 180]")
	}

	exclude := make(map[uuid.UUID]bool, len(userPetIDs)+len(excludedPetIDs))
	for _, id := range userPetIDs {
		exclude[id] = true
	}
	for _, id := range excludedPetIDs {
		exclude[id] = true
	}

	query, args := candidateQuery(userID, exclude)
	pets, err := queryPets(ctx, s.db, query, args...)
	if err != nil {
		return Queue{}, fmt.Errorf("load discovery candidates: %w", err)
	}

	return Queue{items: buildQueue(pets, userID, exclude, requester)}, nil
}

// BuildForUser builds the queue for userID from their pets and existing
// matches.
func (s *DiscoveryService) BuildForUser(ctx context.Context, userID uuid.UUID, requester *geo.Point) (Queue, error) {
	petIDs, err := petIDsForOwner(ctx, s.db, userID)
	if err != nil {
		return Queue{}, err
	}
	excluded, err := s.matches.ExcludedPetIDs(ctx, petIDs)
	if err != nil {
		return Queue{}, err
	}
	return s.BuildCandidateQueue(ctx, userID, petIDs, excluded, requester)
}

func candidateQuery(userID uuid.UUID, exclude map[uuid.UUID]bool) (string, []interface{}) {
	ids := make([]string, 0, len(exclude))
	for id := range exclude {
		ids = append(ids, id.String())
	}
	sort.Strings(ids)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(strings.Split(petColumns, ", ")...)
	sb.From("pets")
	sb.Where(sb.NotEqual("owner_id", userID.String()))
	if len(ids) > 0 {
		sb.Where(sb.NotIn("id", sqlbuilder.Flatten(ids)...))
	}
	sb.OrderBy("created_at", "id")
	return sb.Build()
}

// buildQueue filters and orders candidates. It is the sole authority on
// queue contents, whatever the store returned.
func buildQueue(pets []models.Pet, userID uuid.UUID, exclude map[uuid.UUID]bool, requester *geo.Point) []models.Candidate {
	type ranked struct {
		candidate models.Candidate
		meters    float64
		located   bool
	}

	list := make([]ranked, 0, len(pets))
	for _, p := range pets {
		if p.OwnerID == userID || exclude[p.ID] {
			continue
		}
		r := ranked{candidate: models.Candidate{Pet: p}}
		if requester != nil {
			if point, ok := p.Coordinates(); ok {
				r.meters = geo.Distance(*requester, point)
				km := geo.Kilometers(r.meters)
				r.candidate.DistanceKm = &km
				r.located = true
			}
		}
		list = append(list, r)
	}

	if requester != nil {
		sort.SliceStable(list, func(i, j int) bool {
			a, b := list[i], list[j]
			if a.located != b.located {
				return a.located
			}
			return a.located && a.meters < b.meters
		})
	}

	out := make([]models.Candidate, len(list))
	for i, r := range list {
		out[i] = r.candidate
	}
	return out
}
