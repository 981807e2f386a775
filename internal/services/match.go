package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/HammerMeetNail/petpals/internal/metrics"
	"github.com/HammerMeetNail/petpals/internal/models"
)

const matchColumns = "id, pet_id, matched_pet_id, status, created_at, updated_at"

type MatchService struct {
	db   DB
	feed ChangeFeed
}

func NewMatchService(db DB, feed ChangeFeed) *MatchService {
	return &MatchService{db: db, feed: feed}
}

func scanMatch(row Row) (*models.Match, error) {
	m := &models.Match{}
	var status string
	if err := row.Scan(&m.ID, &m.PetID, &m.MatchedPetID, &status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Status = models.MatchStatus(status)
	return m, nil
}

// ListAcceptedMatches returns every accepted match involving one of
// userPetIDs, newest first, with both sides resolved for display.
func (s *MatchService) ListAcceptedMatches(ctx context.Context, userPetIDs []uuid.UUID) ([]models.ResolvedMatch, error) {
	if len(userPetIDs) == 0 {
		return []models.ResolvedMatch{}, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+matchColumns+`
		 FROM matches
		 WHERE status = 'accepted' AND (pet_id = ANY($1) OR matched_pet_id = ANY($1))
		 ORDER BY created_at DESC, id DESC`,
		userPetIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("list accepted matches: %w", err)
	}
	defer rows.Close()

	var matches []models.Match
	petIDs := make([]uuid.UUID, 0)
	seen := make(map[uuid.UUID]bool)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, *m)
		for _, id := range []uuid.UUID{m.PetID, m.MatchedPetID} {
			if !seen[id] {
				seen[id] = true
				petIDs = append(petIDs, id)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accepted matches: %w", err)
	}

	summaries, err := loadPetSummaries(ctx, s.db, petIDs)
	if err != nil {
		return nil, err
	}

	return resolveMatches(matches, userPetIDs, summaries), nil
}

// resolveMatches picks the user's side of each match. When both pets belong
// to the user, the initiating pet is Self.
func resolveMatches(matches []models.Match, userPetIDs []uuid.UUID, summaries map[uuid.UUID]models.PetSummary) []models.ResolvedMatch {
	owned := make(map[uuid.UUID]bool, len(userPetIDs))
	for _, id := range userPetIDs {
		owned[id] = true
	}

	summary := func(id uuid.UUID) models.PetSummary {
		if ps, ok := summaries[id]; ok {
			return ps
		}
		return models.PetSummary{ID: id, OwnerName: models.DefaultOwnerName, Removed: true}
	}

	resolved := make([]models.ResolvedMatch, 0, len(matches))
	for _, m := range matches {
		selfID, otherID := m.PetID, m.MatchedPetID
		if !owned[m.PetID] {
			selfID, otherID = m.MatchedPetID, m.PetID
		}
		resolved = append(resolved, models.ResolvedMatch{
			MatchID:   m.ID,
			Status:    m.Status,
			CreatedAt: m.CreatedAt,
			Self:      summary(selfID),
			Other:     summary(otherID),
		})
	}
	return resolved
}

func (s *MatchService) ListAcceptedMatchesForUser(ctx context.Context, userID uuid.UUID) ([]models.ResolvedMatch, error) {
	petIDs, err := petIDsForOwner(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	return s.ListAcceptedMatches(ctx, petIDs)
}

// FindMatchID returns the accepted match between one of the user's pets and
// candidatePetID. The user's pet may sit on either side of the match.
func (s *MatchService) FindMatchID(ctx context.Context, userID, candidatePetID uuid.UUID) (uuid.UUID, error) {
	petIDs, err := petIDsForOwner(ctx, s.db, userID)
	if err != nil {
		return uuid.Nil, err
	}
	if len(petIDs) == 0 {
		return uuid.Nil, ErrMatchNotFound
	}

	queries := []string{
		`SELECT id FROM matches
		 WHERE status = 'accepted' AND pet_id = ANY($1) AND matched_pet_id = $2
		 ORDER BY created_at, id LIMIT 1`,
		`SELECT id FROM matches
		 WHERE status = 'accepted' AND pet_id = $2 AND matched_pet_id = ANY($1)
		 ORDER BY created_at, id LIMIT 1`,
	}
	for _, q := range queries {
		var id uuid.UUID
		err := s.db.QueryRow(ctx, q, petIDs, candidatePetID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return uuid.Nil, fmt.Errorf("find match: %w", err)
		}
		return id, nil
	}
	return uuid.Nil, ErrMatchNotFound
}

// HasActiveMatch reports whether petA and petB share an accepted match in
// either direction.
func (s *MatchService) HasActiveMatch(ctx context.Context, petA, petB uuid.UUID) (bool, error) {
	return hasActiveMatch(ctx, s.db, petA, petB)
}

func hasActiveMatch(ctx context.Context, q DBConn, petA, petB uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM matches
			WHERE status = 'accepted'
			AND ((pet_id = $1 AND matched_pet_id = $2) OR (pet_id = $2 AND matched_pet_id = $1))
		)`,
		petA, petB,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active match: %w", err)
	}
	return exists, nil
}

// HasAnyActiveMatch reports whether petID has an accepted match with a pet
// that still exists.
func (s *MatchService) HasAnyActiveMatch(ctx context.Context, petID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM matches m
			JOIN pets p ON p.id = CASE WHEN m.pet_id = $1 THEN m.matched_pet_id ELSE m.pet_id END
			WHERE m.status = 'accepted' AND (m.pet_id = $1 OR m.matched_pet_id = $1)
		)`,
		petID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active matches: %w", err)
	}
	return exists, nil
}

func findPairForUpdate(ctx context.Context, q DBConn, petA, petB uuid.UUID) (*models.Match, error) {
	m, err := scanMatch(q.QueryRow(ctx,
		`SELECT `+matchColumns+`
		 FROM matches
		 WHERE (pet_id = $1 AND matched_pet_id = $2) OR (pet_id = $2 AND matched_pet_id = $1)
		 FOR UPDATE`,
		petA, petB,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load match pair: %w", err)
	}
	return m, nil
}

func setMatchStatus(ctx context.Context, q DBConn, id uuid.UUID, status models.MatchStatus) (*models.Match, error) {
	m, err := scanMatch(q.QueryRow(ctx,
		`UPDATE matches SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING `+matchColumns,
		id, string(status),
	))
	if err != nil {
		return nil, fmt.Errorf("update match status: %w", err)
	}
	return m, nil
}

func insertMatch(ctx context.Context, q DBConn, petID, matchedPetID uuid.UUID, status models.MatchStatus) (*models.Match, error) {
	m, err := scanMatch(q.QueryRow(ctx,
		`INSERT INTO matches (pet_id, matched_pet_id, status) VALUES ($1, $2, $3) RETURNING `+matchColumns,
		petID, matchedPetID, string(status),
	))
	if isUniqueViolation(err) {
		// The pair index rejected a row the pair lock should have found.
		return nil, fmt.Errorf("insert match: %w", ErrMatchPairExists)
	}
	if err != nil {
		return nil, fmt.Errorf("insert match: %w", err)
	}
	return m, nil
}

// CreateOrAcceptMatch records initiator's interest in target. Interest in a
// pet that already asked for initiator accepts the match.
func (s *MatchService) CreateOrAcceptMatch(ctx context.Context, initiatorPetID, targetPetID uuid.UUID) (*models.Match, models.MatchOutcome, error) {
	if initiatorPetID == targetPetID {
		return nil, "", ErrCannotMatchSelf
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("begin match tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	initiatorOwner, targetOwner, err := lockPetPairForUpdate(ctx, tx, initiatorPetID, targetPetID)
	if err != nil {
		return nil, "", err
	}
	if initiatorOwner == targetOwner {
		return nil, "", ErrCannotMatchOwnPet
	}

	existing, err := findPairForUpdate(ctx, tx, initiatorPetID, targetPetID)
	if err != nil {
		return nil, "", err
	}

	var (
		match      *models.Match
		outcome    models.MatchOutcome
		changeType models.ChangeType
	)
	switch {
	case existing == nil:
		match, err = insertMatch(ctx, tx, initiatorPetID, targetPetID, models.MatchStatusPending)
		if err != nil {
			return nil, "", err
		}
		outcome, changeType = models.MatchOutcomeCreatedPending, models.ChangeInsert
	case existing.Status == models.MatchStatusPending && existing.PetID == targetPetID:
		match, err = setMatchStatus(ctx, tx, existing.ID, models.MatchStatusAccepted)
		if err != nil {
			return nil, "", err
		}
		outcome, changeType = models.MatchOutcomeAccepted, models.ChangeUpdate
	case existing.Status == models.MatchStatusPending:
		match, outcome = existing, models.MatchOutcomeAlreadyPending
	case existing.Status == models.MatchStatusAccepted:
		match, outcome = existing, models.MatchOutcomeAccepted
	default:
		return nil, "", ErrMatchRejected
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("commit match: %w", err)
	}
	committed = true

	metrics.MatchOutcomesTotal.WithLabelValues(string(outcome)).Inc()
	if changeType != "" {
		publishChange(ctx, s.feed, matchChangeEvent(changeType, match))
	}
	return match, outcome, nil
}

// DeclineMatch records that decider does not want otherPetID. The pair is
// then left out of discovery for both pets.
func (s *MatchService) DeclineMatch(ctx context.Context, deciderPetID, otherPetID uuid.UUID) (*models.Match, error) {
	if deciderPetID == otherPetID {
		return nil, ErrCannotMatchSelf
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin decline tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	deciderOwner, otherOwner, err := lockPetPairForUpdate(ctx, tx, deciderPetID, otherPetID)
	if err != nil {
		return nil, err
	}
	if deciderOwner == otherOwner {
		return nil, ErrCannotMatchOwnPet
	}

	existing, err := findPairForUpdate(ctx, tx, deciderPetID, otherPetID)
	if err != nil {
		return nil, err
	}

	var (
		match      *models.Match
		changeType models.ChangeType
	)
	switch {
	case existing == nil:
		match, err = insertMatch(ctx, tx, deciderPetID, otherPetID, models.MatchStatusRejected)
		if err != nil {
			return nil, err
		}
		changeType = models.ChangeInsert
	case existing.Status == models.MatchStatusPending:
		match, err = setMatchStatus(ctx, tx, existing.ID, models.MatchStatusRejected)
		if err != nil {
			return nil, err
		}
		changeType = models.ChangeUpdate
	case existing.Status == models.MatchStatusAccepted:
		return nil, ErrMatchAlreadyAccepted
	default:
		match = existing
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit decline: %w", err)
	}
	committed = true

	if changeType != "" {
		publishChange(ctx, s.feed, matchChangeEvent(changeType, match))
	}
	return match, nil
}

// ExcludedPetIDs lists every pet that already has a match row of any status
// with one of userPetIDs.
func (s *MatchService) ExcludedPetIDs(ctx context.Context, userPetIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(userPetIDs) == 0 {
		return []uuid.UUID{}, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT pet_id, matched_pet_id FROM matches
		 WHERE pet_id = ANY($1) OR matched_pet_id = ANY($1)`,
		userPetIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("list matched pets: %w", err)
	}
	defer rows.Close()

	owned := make(map[uuid.UUID]bool, len(userPetIDs))
	for _, id := range userPetIDs {
		owned[id] = true
	}
	seen := make(map[uuid.UUID]bool)
	excluded := []uuid.UUID{}
	for rows.Next() {
		var petID, matchedPetID uuid.UUID
		if err := rows.Scan(&petID, &matchedPetID); err != nil {
			return nil, fmt.Errorf("scan matched pets: %w", err)
		}
		for _, id := range []uuid.UUID{petID, matchedPetID} {
			if !owned[id] && !seen[id] {
				seen[id] = true
				excluded = append(excluded, id)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list matched pets: %w", err)
	}
	return excluded, nil
}

// MatchForUser loads a match that involves one of userID's pets.
func (s *MatchService) MatchForUser(ctx context.Context, userID, matchID uuid.UUID) (*models.Match, error) {
	m, err := scanMatch(s.db.QueryRow(ctx,
		`SELECT m.id, m.pet_id, m.matched_pet_id, m.status, m.created_at, m.updated_at
		 FROM matches m
		 JOIN pets p ON p.id = m.pet_id OR p.id = m.matched_pet_id
		 WHERE m.id = $1 AND p.owner_id = $2
		 LIMIT 1`,
		matchID, userID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load match: %w", err)
	}
	return m, nil
}

// Subscribe delivers changes to any match involving one of userPetIDs.
func (s *MatchService) Subscribe(ctx context.Context, userPetIDs []uuid.UUID, onChange func(models.ChangeEvent)) (Subscription, error) {
	if s.feed == nil {
		return nil, errors.New("live updates unavailable")
	}
	owned := make(map[string]bool, len(userPetIDs))
	for _, id := range userPetIDs {
		owned[id.String()] = true
	}
	return s.feed.Subscribe(ctx, Topic{
		Table: models.TableMatches,
		Match: func(e models.ChangeEvent) bool {
			return owned[e.Keys["pet_id"]] || owned[e.Keys["matched_pet_id"]]
		},
	}, onChange)
}

func matchChangeEvent(typ models.ChangeType, m *models.Match) models.ChangeEvent {
	return newChangeEvent(models.TableMatches, typ, m.ID, map[string]string{
		"pet_id":         m.PetID.String(),
		"matched_pet_id": m.MatchedPetID.String(),
	}, m)
}
