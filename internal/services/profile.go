package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/HammerMeetNail/petpals/internal/models"
)

const profileColumns = "id, full_name, avatar_url, location, created_at, updated_at"

const maxProfileNameLength = 100

type ProfileService struct {
	db DB
}

func NewProfileService(db DB) *ProfileService {
	return &ProfileService{db: db}
}

func scanProfile(row Row) (*models.Profile, error) {
	p := &models.Profile{}
	if err := row.Scan(&p.ID, &p.FullName, &p.AvatarURL, &p.Location, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ProfileService) Get(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	p, err := scanProfile(s.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// Ensure creates the profile on first sight of a user. An existing profile
// is returned unchanged.
func (s *ProfileService) Ensure(ctx context.Context, id uuid.UUID, fullName string) (*models.Profile, error) {
	var name *string
	if trimmed := strings.TrimSpace(fullName); trimmed != "" {
		name = &trimmed
	}

	p, err := scanProfile(s.db.QueryRow(ctx,
		`INSERT INTO profiles (id, full_name) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		 RETURNING `+profileColumns,
		id, name,
	))
	if err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}
	return p, nil
}

func (s *ProfileService) UpdateName(ctx context.Context, id uuid.UUID, fullName string) (*models.Profile, error) {
	trimmed := strings.TrimSpace(fullName)
	if trimmed == "" {
		return nil, newValidationError("full_name", "is required")
	}
	if utf8.RuneCountInString(trimmed) > maxProfileNameLength {
		return nil, newValidationError("full_name", fmt.Sprintf("must be at most %d characters", maxProfileNameLength))
	}

	p, err := scanProfile(s.db.QueryRow(ctx,
		`UPDATE profiles SET full_name = $2, updated_at = NOW() WHERE id = $1 RETURNING `+profileColumns,
		id, trimmed,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}
