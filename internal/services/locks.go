package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// lockPetPairForUpdate row-locks both pets in byte order of their ids so two
// owners acting on the same pair at once cannot deadlock. It returns the
// owner of each pet in argument order.
func lockPetPairForUpdate(ctx context.Context, q DBConn, petA, petB uuid.UUID) (ownerA, ownerB uuid.UUID, err error) {
	first, second := petA, petB
	swapped := false
	if bytes.Compare(first[:], second[:]) > 0 {
		first, second = second, first
		swapped = true
	}

	firstOwner, err := lockPetForUpdate(ctx, q, first)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if first == second {
		return firstOwner, firstOwner, nil
	}
	secondOwner, err := lockPetForUpdate(ctx, q, second)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	if swapped {
		return secondOwner, firstOwner, nil
	}
	return firstOwner, secondOwner, nil
}

func lockPetForUpdate(ctx context.Context, q DBConn, petID uuid.UUID) (uuid.UUID, error) {
	var ownerID uuid.UUID
	err := q.QueryRow(ctx, `SELECT owner_id FROM pets WHERE id = $1 FOR UPDATE`, petID).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrPetNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("lock pet: %w", err)
	}
	return ownerID, nil
}
