package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/HammerMeetNail/petpals/internal/models"
)

func petValues(p models.Pet) []any {
	return []any{
		p.ID, p.OwnerID, p.Name, p.Breed, p.Age, string(p.Gender), p.Bio, p.ImageURL,
		p.Location, p.Latitude, p.Longitude, p.CreatedAt, p.UpdatedAt,
	}
}

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

func validPetInput() models.PetInput {
	return models.PetInput{
		Name:   "Rex",
		Breed:  "Labrador",
		Age:    3,
		Gender: models.GenderMale,
		Bio:    "Loves fetch",
	}
}

func TestNormalizePetInput(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.PetInput)
		wantErr string
	}{
		{name: "valid", mutate: func(*models.PetInput) {}},
		{name: "missing name", mutate: func(in *models.PetInput) { in.Name = "   " }, wantErr: "name"},
		{name: "zero age", mutate: func(in *models.PetInput) { in.Age = 0 }, wantErr: "age"},
		{name: "unknown gender", mutate: func(in *models.PetInput) { in.Gender = "other" }, wantErr: "gender"},
		{name: "bad image url", mutate: func(in *models.PetInput) { in.ImageURL = "not a url" }, wantErr: "image_url"},
		{name: "latitude out of range", mutate: func(in *models.PetInput) {
			in.Latitude, in.Longitude = floatPtr(91), floatPtr(0)
		}, wantErr: "latitude"},
		{name: "latitude without longitude", mutate: func(in *models.PetInput) {
			in.Latitude = floatPtr(10)
		}, wantErr: "latitude"},
		{name: "long bio", mutate: func(in *models.PetInput) { in.Bio = strings.Repeat("b", 1001) }, wantErr: "bio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validPetInput()
			tt.mutate(&in)
			_, err := normalizePetInput(in)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, f := range verr.Fields {
				if f.Field == tt.wantErr {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected error on %q, got %+v", tt.wantErr, verr.Fields)
			}
		})
	}
}

func TestNormalizePetInput_TrimsAndLowercases(t *testing.T) {
	in := validPetInput()
	in.Name = "  Rex  "
	in.Gender = " Female "
	in.Location = strPtr("   ")

	got, err := normalizePetInput(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Rex" || got.Gender != models.GenderFemale {
		t.Fatalf("unexpected normalized input: %+v", got)
	}
	if got.Location != nil {
		t.Fatal("expected blank location to be cleared")
	}
}

func TestPetService_CreateRejectsInvalidInputWithoutStore(t *testing.T) {
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			t.Fatal("no store call expected")
			return nil
		},
	}
	svc := NewPetService(db, nil)

	in := validPetInput()
	in.Name = ""
	if _, err := svc.Create(context.Background(), uuid.New(), in); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPetService_CreatePublishes(t *testing.T) {
	ownerID := uuid.New()
	feed := &recordingFeed{}
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			if !strings.Contains(sql, "INSERT INTO pets") {
				t.Fatalf("unexpected sql: %q", sql)
			}
			now := time.Now()
			return rowFromValues(petValues(models.Pet{
				ID: uuid.New(), OwnerID: args[0].(uuid.UUID), Name: args[1].(string), Breed: args[2].(string),
				Age: args[3].(float64), Gender: models.Gender(args[4].(string)), CreatedAt: now, UpdatedAt: now,
			})...)
		},
	}
	svc := NewPetService(db, feed)

	pet, err := svc.Create(context.Background(), ownerID, validPetInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pet.OwnerID != ownerID || pet.Name != "Rex" {
		t.Fatalf("unexpected pet: %+v", pet)
	}
	events := feed.published()
	if len(events) != 1 || events[0].Type != models.ChangeInsert || events[0].Keys["owner_id"] != ownerID.String() {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestPetService_UpdateNotOwned(t *testing.T) {
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			if !strings.Contains(sql, "WHERE id = $1 AND owner_id = $2") {
				t.Fatalf("expected owner-scoped update, got %q", sql)
			}
			return errRow(pgx.ErrNoRows)
		},
	}
	svc := NewPetService(db, nil)

	if _, err := svc.Update(context.Background(), uuid.New(), uuid.New(), validPetInput()); !errors.Is(err, ErrPetNotFound) {
		t.Fatalf("expected ErrPetNotFound, got %v", err)
	}
}

func TestPetService_GetNotFound(t *testing.T) {
	db := &fakeDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			return errRow(pgx.ErrNoRows)
		},
	}
	svc := NewPetService(db, nil)

	if _, err := svc.Get(context.Background(), uuid.New()); !errors.Is(err, ErrPetNotFound) {
		t.Fatalf("expected ErrPetNotFound, got %v", err)
	}
}

func TestPetService_ListByOwner(t *testing.T) {
	ownerID := uuid.New()
	now := time.Now()
	lat, lng := 40.7, -74.0
	db := &fakeDB{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (Rows, error) {
			if args[0].(uuid.UUID) != ownerID {
				t.Fatalf("unexpected owner arg %v", args[0])
			}
			return &fakeRows{rows: [][]any{
				petValues(models.Pet{ID: uuid.New(), OwnerID: ownerID, Name: "Rex", Gender: models.GenderMale, Latitude: &lat, Longitude: &lng, CreatedAt: now}),
				petValues(models.Pet{ID: uuid.New(), OwnerID: ownerID, Name: "Bella", Gender: models.GenderFemale, CreatedAt: now}),
			}}, nil
		},
	}
	svc := NewPetService(db, nil)

	pets, err := svc.ListByOwner(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pets) != 2 {
		t.Fatalf("expected 2 pets, got %d", len(pets))
	}
	if _, ok := pets[0].Coordinates(); !ok {
		t.Fatal("expected first pet to be located")
	}
	if _, ok := pets[1].Coordinates(); ok {
		t.Fatal("expected second pet to be unlocated")
	}
}

type deleteTxState struct {
	found      bool
	active     []uuid.UUID
	partners   map[uuid.UUID]uuid.UUID
	pairGone   bool
	pairChecks []uuid.UUID
	failNotice map[uuid.UUID]bool
	execs      []string
	committed  bool
	rolled     bool
}

func newDeleteTx(t *testing.T, state *deleteTxState) *fakeTx {
	t.Helper()
	return &fakeTx{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) Row {
			switch {
			case strings.Contains(sql, "FROM pets WHERE id = $1 AND owner_id = $2 FOR UPDATE"):
				if !state.found {
					return errRow(pgx.ErrNoRows)
				}
				return rowFromValues(args[0])
			case strings.Contains(sql, "SELECT EXISTS") && strings.Contains(sql, "matched_pet_id = $2"):
				state.pairChecks = append(state.pairChecks, args[1].(uuid.UUID))
				return rowFromValues(!state.pairGone)
			case strings.Contains(sql, "INSERT INTO messages"):
				if state.failNotice[args[0].(uuid.UUID)] {
					return errRow(errors.New("insert failed"))
				}
				return insertedMessageRow(args)
			}
			t.Fatalf("unexpected sql: %q", sql)
			return nil
		},
		QueryFunc: func(ctx context.Context, sql string, args ...any) (Rows, error) {
			if !strings.Contains(sql, "m.status = 'accepted'") {
				t.Fatalf("unexpected query: %q", sql)
			}
			if state.partners == nil {
				state.partners = map[uuid.UUID]uuid.UUID{}
			}
			rows := make([][]any, 0, len(state.active))
			for _, id := range state.active {
				if _, ok := state.partners[id]; !ok {
					state.partners[id] = uuid.New()
				}
				rows = append(rows, []any{id, state.partners[id]})
			}
			return &fakeRows{rows: rows}, nil
		},
		ExecFunc: func(ctx context.Context, sql string, args ...any) (CommandTag, error) {
			state.execs = append(state.execs, strings.Join(strings.Fields(sql), " "))
			return fakeCommandTag{rowsAffected: 1}, nil
		},
		CommitFunc: func(ctx context.Context) error {
			state.committed = true
			return nil
		},
		RollbackFunc: func(ctx context.Context) error {
			state.rolled = true
			return nil
		},
	}
}

func containsPrefix(list []string, prefix string) bool {
	for _, s := range list {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func TestRequestDelete_NotFound(t *testing.T) {
	state := &deleteTxState{}
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return newDeleteTx(t, state), nil }}
	svc := NewPetService(db, nil)

	if _, err := svc.RequestDelete(context.Background(), uuid.New(), uuid.New(), false); !errors.Is(err, ErrPetNotFound) {
		t.Fatalf("expected ErrPetNotFound, got %v", err)
	}
	if !state.rolled || state.committed {
		t.Fatal("expected rollback")
	}
}

func TestRequestDelete_NoMatchesDeletes(t *testing.T) {
	petID, ownerID := uuid.New(), uuid.New()
	state := &deleteTxState{found: true}
	feed := &recordingFeed{}
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return newDeleteTx(t, state), nil }}
	svc := NewPetService(db, feed)

	res, err := svc.RequestDelete(context.Background(), ownerID, petID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != models.DeleteOutcomeDeleted {
		t.Fatalf("expected deleted, got %s", res.Outcome)
	}
	if !state.committed {
		t.Fatal("expected commit")
	}
	if !containsPrefix(state.execs, "DELETE FROM pets") {
		t.Fatalf("expected pet delete, got %v", state.execs)
	}
	events := feed.published()
	if len(events) != 1 || events[0].Type != models.ChangeDelete || events[0].RecordID != petID {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestRequestDelete_BlockedByActiveMatches(t *testing.T) {
	state := &deleteTxState{found: true, active: []uuid.UUID{uuid.New()}}
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return newDeleteTx(t, state), nil }}
	svc := NewPetService(db, nil)

	res, err := svc.RequestDelete(context.Background(), uuid.New(), uuid.New(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != models.DeleteOutcomeBlockedHasMatches {
		t.Fatalf("expected blocked, got %s", res.Outcome)
	}
	if state.committed || len(state.execs) != 0 {
		t.Fatalf("expected nothing written, execs=%v", state.execs)
	}
	if len(state.pairChecks) != 1 || state.pairChecks[0] != state.partners[state.active[0]] {
		t.Fatalf("expected one pair check against the partner, got %v", state.pairChecks)
	}
}

func TestRequestDelete_PartnerWithoutActivePairDeletes(t *testing.T) {
	m1 := uuid.New()
	state := &deleteTxState{found: true, active: []uuid.UUID{m1}, pairGone: true}
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return newDeleteTx(t, state), nil }}
	svc := NewPetService(db, nil)

	res, err := svc.RequestDelete(context.Background(), uuid.New(), uuid.New(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != models.DeleteOutcomeDeleted || !state.committed {
		t.Fatalf("expected committed deletion, got %+v", res)
	}
	if len(state.pairChecks) != 1 {
		t.Fatalf("expected one pair check, got %v", state.pairChecks)
	}
}

func TestRequestDelete_ForcedPostsNoticesBeforeDelete(t *testing.T) {
	m1, m2 := uuid.New(), uuid.New()
	state := &deleteTxState{found: true, active: []uuid.UUID{m1, m2}}
	feed := &recordingFeed{}
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return newDeleteTx(t, state), nil }}
	svc := NewPetService(db, feed)

	res, err := svc.RequestDelete(context.Background(), uuid.New(), uuid.New(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != models.DeleteOutcomeDeleted {
		t.Fatalf("expected deleted, got %s", res.Outcome)
	}
	if len(res.NotifiedMatchIDs) != 2 || res.NotifiedMatchIDs[0] != m1 || res.NotifiedMatchIDs[1] != m2 {
		t.Fatalf("unexpected notified matches: %v", res.NotifiedMatchIDs)
	}
	if len(res.FailedMatchIDs) != 0 {
		t.Fatalf("expected no failures, got %v", res.FailedMatchIDs)
	}

	last := state.execs[len(state.execs)-1]
	if !strings.HasPrefix(last, "DELETE FROM pets") {
		t.Fatalf("expected pet delete last, got %v", state.execs)
	}
	if !strings.HasPrefix(state.execs[0], "SAVEPOINT notice") {
		t.Fatalf("expected notices first, got %v", state.execs)
	}
	if len(feed.published()) != 3 {
		t.Fatalf("expected pet delete plus two message events, got %d", len(feed.published()))
	}
	if len(state.pairChecks) != 0 {
		t.Fatalf("expected forced delete to skip pair checks, got %v", state.pairChecks)
	}
}

func TestRequestDelete_NoticeFailureStillDeletes(t *testing.T) {
	good, bad := uuid.New(), uuid.New()
	state := &deleteTxState{found: true, active: []uuid.UUID{good, bad}, failNotice: map[uuid.UUID]bool{bad: true}}
	db := &fakeDB{BeginFunc: func(ctx context.Context) (Tx, error) { return newDeleteTx(t, state), nil }}
	svc := NewPetService(db, nil)

	res, err := svc.RequestDelete(context.Background(), uuid.New(), uuid.New(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != models.DeleteOutcomeDeleted || !state.committed {
		t.Fatalf("expected committed deletion, got %+v", res)
	}
	if len(res.FailedMatchIDs) != 1 || res.FailedMatchIDs[0] != bad {
		t.Fatalf("expected %s to fail, got %v", bad, res.FailedMatchIDs)
	}
	if !containsPrefix(state.execs, "ROLLBACK TO SAVEPOINT notice") {
		t.Fatalf("expected savepoint rollback, got %v", state.execs)
	}
}

func TestPetService_SubscribeScopedToOwner(t *testing.T) {
	feed := NewMemoryFeed()
	svc := NewPetService(&fakeDB{}, feed)
	ownerID := uuid.New()
	got := make(chan models.ChangeEvent, 2)

	sub, err := svc.Subscribe(context.Background(), ownerID, func(e models.ChangeEvent) { got <- e })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sub.Unsubscribe()

	publishChange(context.Background(), feed, petChangeEvent(models.ChangeDelete, uuid.New(), uuid.New(), nil))
	expectNoEvent(t, got)

	petID := uuid.New()
	publishChange(context.Background(), feed, petChangeEvent(models.ChangeDelete, petID, ownerID, nil))
	if e := waitForEvent(t, got); e.RecordID != petID {
		t.Fatalf("expected %s, got %s", petID, e.RecordID)
	}
}
