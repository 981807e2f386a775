package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func TestLockPetPairForUpdate_LocksInStableOrder(t *testing.T) {
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")
	lowOwner := uuid.New()
	highOwner := uuid.New()

	var got []uuid.UUID
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			if !strings.Contains(sql, "FROM pets") || !strings.Contains(sql, "FOR UPDATE") {
				t.Fatalf("unexpected sql: %q", sql)
			}
			id := args[0].(uuid.UUID)
			got = append(got, id)
			if id == low {
				return rowFromValues(lowOwner)
			}
			return rowFromValues(highOwner)
		},
	}

	ownerA, ownerB, err := lockPetPairForUpdate(context.Background(), db, high, low)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != low || got[1] != high {
		t.Fatalf("unexpected lock order: %+v", got)
	}
	if ownerA != highOwner || ownerB != lowOwner {
		t.Fatalf("owners not returned in argument order: %s %s", ownerA, ownerB)
	}
}

func TestLockPetPairForUpdate_SamePetLocksOnce(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	var calls int
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			calls++
			return rowFromValues(uuid.New())
		},
	}

	if _, _, err := lockPetPairForUpdate(context.Background(), db, id, id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 lock call, got %d", calls)
	}
}

func TestLockPetPairForUpdate_MissingPetIsNotFound(t *testing.T) {
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")

	var calls int
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			calls++
			if args[0].(uuid.UUID) == high {
				return errRow(pgx.ErrNoRows)
			}
			return rowFromValues(uuid.New())
		},
	}

	if _, _, err := lockPetPairForUpdate(context.Background(), db, low, high); !errors.Is(err, ErrPetNotFound) {
		t.Fatalf("expected ErrPetNotFound, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestLockPetForUpdate_WrapsUnexpectedError(t *testing.T) {
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			return errRow(errors.New("boom"))
		},
	}

	_, err := lockPetForUpdate(context.Background(), db, uuid.New())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "lock pet") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
