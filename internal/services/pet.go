package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/HammerMeetNail/petpals/internal/logging"
	"github.com/HammerMeetNail/petpals/internal/metrics"
	"github.com/HammerMeetNail/petpals/internal/models"
)

const petColumns = "id, owner_id, name, breed, age, gender, bio, image_url, location, latitude, longitude, created_at, updated_at"

type PetService struct {
	db   DB
	feed ChangeFeed
}

func NewPetService(db DB, feed ChangeFeed) *PetService {
	return &PetService{db: db, feed: feed}
}

func scanPet(row Row) (*models.Pet, error) {
	p := &models.Pet{}
	var gender string
	if err := row.Scan(
		&p.ID, &p.OwnerID, &p.Name, &p.Breed, &p.Age, &gender, &p.Bio, &p.ImageURL,
		&p.Location, &p.Latitude, &p.Longitude, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Gender = models.Gender(gender)
	return p, nil
}

func (s *PetService) Create(ctx context.Context, ownerID uuid.UUID, input models.PetInput) (*models.Pet, error) {
	in, err := normalizePetInput(input)
	if err != nil {
		return nil, err
	}

	pet, err := scanPet(s.db.QueryRow(ctx,
		`INSERT INTO pets (owner_id, name, breed, age, gender, bio, image_url, location, latitude, longitude)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+petColumns,
		ownerID, in.Name, in.Breed, in.Age, string(in.Gender), in.Bio, in.ImageURL, in.Location, in.Latitude, in.Longitude,
	))
	if err != nil {
		return nil, fmt.Errorf("create pet: %w", err)
	}

	publishChange(ctx, s.feed, petChangeEvent(models.ChangeInsert, pet.ID, pet.OwnerID, pet))
	return pet, nil
}

func (s *PetService) Update(ctx context.Context, ownerID, petID uuid.UUID, input models.PetInput) (*models.Pet, error) {
	in, err := normalizePetInput(input)
	if err != nil {
		return nil, err
	}

	pet, err := scanPet(s.db.QueryRow(ctx,
		`UPDATE pets SET name = $3, breed = $4, age = $5, gender = $6, bio = $7, image_url = $8,
		 location = $9, latitude = $10, longitude = $11, updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+petColumns,
		petID, ownerID, in.Name, in.Breed, in.Age, string(in.Gender), in.Bio, in.ImageURL, in.Location, in.Latitude, in.Longitude,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update pet: %w", err)
	}

	publishChange(ctx, s.feed, petChangeEvent(models.ChangeUpdate, pet.ID, pet.OwnerID, pet))
	return pet, nil
}

func (s *PetService) Get(ctx context.Context, petID uuid.UUID) (*models.Pet, error) {
	pet, err := scanPet(s.db.QueryRow(ctx, `SELECT `+petColumns+` FROM pets WHERE id = $1`, petID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pet: %w", err)
	}
	return pet, nil
}

func (s *PetService) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Pet, error) {
	return queryPets(ctx, s.db,
		`SELECT `+petColumns+` FROM pets WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
}

func (s *PetService) PetIDsForOwner(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error) {
	return petIDsForOwner(ctx, s.db, ownerID)
}

// Subscribe delivers changes to ownerID's pets.
func (s *PetService) Subscribe(ctx context.Context, ownerID uuid.UUID, onChange func(models.ChangeEvent)) (Subscription, error) {
	if s.feed == nil {
		return nil, errors.New("live updates unavailable")
	}
	return s.feed.Subscribe(ctx, Topic{
		Table:  models.TablePets,
		Column: "owner_id",
		Value:  ownerID.String(),
	}, onChange)
}

// RequestDelete removes ownerID's pet. While the pet has an accepted match
// with another existing pet, deletion is refused unless force is set. A
// forced deletion posts a removal notice into each of those matches in the
// same transaction that deletes the pet.
func (s *PetService) RequestDelete(ctx context.Context, ownerID, petID uuid.UUID, force bool) (*models.PetDeletion, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin delete tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var lockedID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM pets WHERE id = $1 AND owner_id = $2 FOR UPDATE`,
		petID, ownerID,
	).Scan(&lockedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock pet: %w", err)
	}

	accepted, err := acceptedMatches(ctx, tx, petID)
	if err != nil {
		return nil, err
	}

	result := &models.PetDeletion{PetID: petID}
	if !force {
		blocked, err := anyActivePartner(ctx, tx, petID, accepted)
		if err != nil {
			return nil, err
		}
		if blocked {
			result.Outcome = models.DeleteOutcomeBlockedHasMatches
			metrics.PetDeletionsTotal.WithLabelValues(string(result.Outcome)).Inc()
			return result, nil
		}
	}

	matchIDs := make([]uuid.UUID, 0, len(accepted))
	for _, m := range accepted {
		matchIDs = append(matchIDs, m.ID)
	}
	notices, failures, err := writeNotices(ctx, tx, petID, matchIDs, time.Now().UTC(), true)
	if err != nil {
		return nil, err
	}

	// Accepted matches with a surviving pet stay so the other owner can read
	// the notice.
	if _, err := tx.Exec(ctx,
		`DELETE FROM matches m
		 WHERE (m.pet_id = $1 OR m.matched_pet_id = $1)
		 AND (m.status <> 'accepted' OR NOT EXISTS (
			SELECT 1 FROM pets p
			WHERE p.id = CASE WHEN m.pet_id = $1 THEN m.matched_pet_id ELSE m.pet_id END
		 ))`,
		petID,
	); err != nil {
		return nil, fmt.Errorf("delete pet matches: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM pets WHERE id = $1 AND owner_id = $2`, petID, ownerID); err != nil {
		return nil, fmt.Errorf("delete pet: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit delete: %w", err)
	}
	committed = true

	result.Outcome = models.DeleteOutcomeDeleted
	for _, n := range notices {
		result.NotifiedMatchIDs = append(result.NotifiedMatchIDs, n.MatchID)
	}
	if len(failures) > 0 {
		result.FailedMatchIDs = (&PartialFanoutError{Failures: failures}).FailedMatchIDs()
		logging.Warn("Pet deleted with undelivered removal notices", map[string]interface{}{
			"pet_id":   petID.String(),
			"failures": len(failures),
		})
	}
	metrics.PetDeletionsTotal.WithLabelValues(string(result.Outcome)).Inc()

	publishChange(ctx, s.feed, petChangeEvent(models.ChangeDelete, petID, ownerID, nil))
	for i := range notices {
		publishChange(ctx, s.feed, messageChangeEvent(&notices[i]))
	}
	return result, nil
}

type acceptedMatch struct {
	ID         uuid.UUID
	OtherPetID uuid.UUID
}

// acceptedMatches lists petID's accepted matches whose other pet still
// exists, oldest first. Matches with a removed pet are skipped.
func acceptedMatches(ctx context.Context, q DBConn, petID uuid.UUID) ([]acceptedMatch, error) {
	rows, err := q.Query(ctx,
		`SELECT m.id, p.id FROM matches m
		 JOIN pets p ON p.id = CASE WHEN m.pet_id = $1 THEN m.matched_pet_id ELSE m.pet_id END
		 WHERE m.status = 'accepted' AND (m.pet_id = $1 OR m.matched_pet_id = $1)
		 ORDER BY m.created_at, m.id`,
		petID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active matches: %w", err)
	}
	defer rows.Close()

	matches := []acceptedMatch{}
	for rows.Next() {
		var m acceptedMatch
		if err := rows.Scan(&m.ID, &m.OtherPetID); err != nil {
			return nil, fmt.Errorf("scan active match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active matches: %w", err)
	}
	return matches, nil
}

// anyActivePartner runs the pair check against every partner reachable
// through an accepted match.
func anyActivePartner(ctx context.Context, q DBConn, petID uuid.UUID, matches []acceptedMatch) (bool, error) {
	for _, m := range matches {
		active, err := hasActiveMatch(ctx, q, petID, m.OtherPetID)
		if err != nil {
			return false, err
		}
		if active {
			return true, nil
		}
	}
	return false, nil
}

func queryPets(ctx context.Context, q DBConn, sql string, args ...any) ([]models.Pet, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list pets: %w", err)
	}
	defer rows.Close()

	pets := []models.Pet{}
	for rows.Next() {
		p, err := scanPet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pet: %w", err)
		}
		pets = append(pets, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pets: %w", err)
	}
	return pets, nil
}

func petIDsForOwner(ctx context.Context, q DBConn, ownerID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, `SELECT id FROM pets WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list pet ids: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pet id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pet ids: %w", err)
	}
	return ids, nil
}

// loadPetSummaries fetches display data for ids along with each owner's
// name. Ids with no pet row are absent from the result.
func loadPetSummaries(ctx context.Context, q DBConn, ids []uuid.UUID) (map[uuid.UUID]models.PetSummary, error) {
	out := make(map[uuid.UUID]models.PetSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := q.Query(ctx,
		`SELECT p.id, p.owner_id, p.name, p.breed, p.age, p.gender, p.bio, p.image_url, p.location, pr.full_name
		 FROM pets p
		 LEFT JOIN profiles pr ON pr.id = p.owner_id
		 WHERE p.id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("load pet summaries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ps       models.PetSummary
			gender   string
			fullName *string
		)
		if err := rows.Scan(&ps.ID, &ps.OwnerID, &ps.Name, &ps.Breed, &ps.Age, &gender, &ps.Bio, &ps.ImageURL, &ps.Location, &fullName); err != nil {
			return nil, fmt.Errorf("scan pet summary: %w", err)
		}
		ps.Gender = models.Gender(gender)
		ps.OwnerName = (&models.Profile{FullName: fullName}).DisplayName()
		out[ps.ID] = ps
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load pet summaries: %w", err)
	}
	return out, nil
}

func petChangeEvent(typ models.ChangeType, petID, ownerID uuid.UUID, pet *models.Pet) models.ChangeEvent {
	var record any
	if pet != nil {
		record = pet
	}
	return newChangeEvent(models.TablePets, typ, petID, map[string]string{
		"owner_id": ownerID.String(),
	}, record)
}
