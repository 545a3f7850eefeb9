package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/pantryman/internal/model"
)

// 以下はPostgreSQL/MongoDBの両実装で共通に満たすべき振る舞いを検証する。
// 接続先が用意されている場合のみ各実装のテストから呼び出される。

func newTestItem(owner, id, name string, expiry time.Time) *model.PantryItem {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.PantryItem{
		ID:             id,
		OwnerSubjectID: owner,
		Name:           name,
		Category:       model.CategoryDairy,
		Quantity:       1,
		Unit:           model.UnitLiter,
		ExpiryDate:     expiry,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func runUserRepoContract(t *testing.T, repo UserRepository) {
	ctx := context.Background()

	t.Run("FindBySubjectID_NotFound_ReturnsNil", func(t *testing.T) {
		user, err := repo.FindBySubjectID(ctx, "missing-"+uuid.NewString())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user != nil {
			t.Errorf("expected nil user, got %+v", user)
		}
	})

	t.Run("Create_ThenFind", func(t *testing.T) {
		subject := "uid-" + uuid.NewString()
		user := &model.User{
			ID:          uuid.NewString(),
			SubjectID:   subject,
			Email:       "cook@example.com",
			DisplayName: "Cook",
			PhotoURL:    "https://example.com/cook.png",
			CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
		}
		if err := repo.Create(ctx, user); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		got, err := repo.FindBySubjectID(ctx, subject)
		if err != nil {
			t.Fatalf("FindBySubjectID failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected user to be found")
		}
		if got.ID != user.ID || got.Email != user.Email || got.DisplayName != user.DisplayName || got.PhotoURL != user.PhotoURL {
			t.Errorf("got %+v, want %+v", got, user)
		}
	})

	t.Run("Create_DuplicateSubject_ReturnsErrDuplicate", func(t *testing.T) {
		subject := "uid-" + uuid.NewString()
		first := &model.User{ID: uuid.NewString(), SubjectID: subject, Email: "a@example.com", CreatedAt: time.Now().UTC()}
		second := &model.User{ID: uuid.NewString(), SubjectID: subject, Email: "a@example.com", CreatedAt: time.Now().UTC()}

		if err := repo.Create(ctx, first); err != nil {
			t.Fatalf("first Create failed: %v", err)
		}
		if err := repo.Create(ctx, second); !errors.Is(err, ErrDuplicate) {
			t.Errorf("second Create error = %v, want ErrDuplicate", err)
		}
	})

	t.Run("Create_ConcurrentSameSubject_OnlyOneSucceeds", func(t *testing.T) {
		subject := "uid-" + uuid.NewString()
		const workers = 8

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- repo.Create(ctx, &model.User{ID: uuid.NewString(), SubjectID: subject, CreatedAt: time.Now().UTC()})
			}()
		}
		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrDuplicate):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		if succeeded != 1 {
			t.Errorf("succeeded = %d, want 1", succeeded)
		}
	})
}

func runPantryItemRepoContract(t *testing.T, repo PantryItemRepository, newID func() string) {
	ctx := context.Background()

	t.Run("ListByOwner_SortedByExpiryAndScoped", func(t *testing.T) {
		alice := "alice-" + uuid.NewString()
		bob := "bob-" + uuid.NewString()

		for _, it := range []*model.PantryItem{
			newTestItem(alice, newID(), "Yogurt", date(2025, 3, 1)),
			newTestItem(alice, newID(), "Milk", date(2025, 1, 10)),
			newTestItem(bob, newID(), "Cheese", date(2025, 1, 1)),
			newTestItem(alice, newID(), "Butter", date(2025, 2, 1)),
		} {
			if err := repo.Create(ctx, it); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
		}

		items, err := repo.ListByOwner(ctx, alice)
		if err != nil {
			t.Fatalf("ListByOwner failed: %v", err)
		}
		if len(items) != 3 {
			t.Fatalf("len(items) = %d, want 3", len(items))
		}
		wantOrder := []string{"Milk", "Butter", "Yogurt"}
		for i, it := range items {
			if it.OwnerSubjectID != alice {
				t.Errorf("items[%d] owner = %q, want %q", i, it.OwnerSubjectID, alice)
			}
			if it.Name != wantOrder[i] {
				t.Errorf("items[%d].Name = %q, want %q", i, it.Name, wantOrder[i])
			}
		}
	})

	t.Run("ListByOwner_NoItems_ReturnsEmptySlice", func(t *testing.T) {
		items, err := repo.ListByOwner(ctx, "nobody-"+uuid.NewString())
		if err != nil {
			t.Fatalf("ListByOwner failed: %v", err)
		}
		if items == nil || len(items) != 0 {
			t.Errorf("items = %v, want empty non-nil slice", items)
		}
	})

	t.Run("Create_RoundTripsFields", func(t *testing.T) {
		owner := "owner-" + uuid.NewString()
		in := newTestItem(owner, newID(), "Milk", date(2025, 1, 10))
		in.Quantity = 1.5
		if err := repo.Create(ctx, in); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		got, err := repo.FindByOwnerAndID(ctx, owner, in.ID)
		if err != nil {
			t.Fatalf("FindByOwnerAndID failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected item")
		}
		if got.Name != "Milk" || got.Category != model.CategoryDairy || got.Quantity != 1.5 || got.Unit != model.UnitLiter {
			t.Errorf("got %+v", got)
		}
		if !got.ExpiryDate.Equal(date(2025, 1, 10)) {
			t.Errorf("ExpiryDate = %v, want 2025-01-10", got.ExpiryDate)
		}
	})

	t.Run("UpdateByOwnerAndID_PartialUpdateKeepsOtherFields", func(t *testing.T) {
		owner := "owner-" + uuid.NewString()
		in := newTestItem(owner, newID(), "Milk", date(2025, 1, 10))
		if err := repo.Create(ctx, in); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		qty := 3.0
		updatedAt := in.UpdatedAt.Add(time.Minute)
		got, err := repo.UpdateByOwnerAndID(ctx, owner, in.ID, model.PantryItemPatch{Quantity: &qty}, updatedAt)
		if err != nil {
			t.Fatalf("UpdateByOwnerAndID failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected updated item")
		}
		if got.Quantity != 3 {
			t.Errorf("Quantity = %v, want 3", got.Quantity)
		}
		if got.Name != in.Name || got.Category != in.Category || got.Unit != in.Unit || !got.ExpiryDate.Equal(in.ExpiryDate) {
			t.Errorf("unspecified fields changed: got %+v, want %+v", got, in)
		}
		if !got.UpdatedAt.Equal(updatedAt) {
			t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, updatedAt)
		}
	})

	t.Run("UpdateAndDelete_ForeignOwner_ReturnsNil", func(t *testing.T) {
		owner := "owner-" + uuid.NewString()
		other := "other-" + uuid.NewString()
		in := newTestItem(owner, newID(), "Milk", date(2025, 1, 10))
		if err := repo.Create(ctx, in); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		name := "Stolen"
		got, err := repo.UpdateByOwnerAndID(ctx, other, in.ID, model.PantryItemPatch{Name: &name}, time.Now().UTC())
		if err != nil || got != nil {
			t.Errorf("foreign update = (%v, %v), want (nil, nil)", got, err)
		}

		deleted, err := repo.DeleteByOwnerAndID(ctx, other, in.ID)
		if err != nil || deleted != nil {
			t.Errorf("foreign delete = (%v, %v), want (nil, nil)", deleted, err)
		}

		still, err := repo.FindByOwnerAndID(ctx, owner, in.ID)
		if err != nil || still == nil || still.Name != "Milk" {
			t.Errorf("owner's item was modified: (%+v, %v)", still, err)
		}
	})

	t.Run("DeleteByOwnerAndID_ReturnsPriorStateAndRemoves", func(t *testing.T) {
		owner := "owner-" + uuid.NewString()
		in := newTestItem(owner, newID(), "Eggs", date(2025, 1, 5))
		if err := repo.Create(ctx, in); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		deleted, err := repo.DeleteByOwnerAndID(ctx, owner, in.ID)
		if err != nil {
			t.Fatalf("DeleteByOwnerAndID failed: %v", err)
		}
		if deleted == nil || deleted.ID != in.ID || deleted.Name != "Eggs" {
			t.Fatalf("deleted = %+v, want prior state of %s", deleted, in.ID)
		}

		again, err := repo.DeleteByOwnerAndID(ctx, owner, in.ID)
		if err != nil || again != nil {
			t.Errorf("second delete = (%v, %v), want (nil, nil)", again, err)
		}
	})
}

// uniqueID はテスト用の一意なIDを生成する。
func uniqueID() func() string {
	var mu sync.Mutex
	n := 0
	prefix := uuid.NewString()[:8]
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%04d", prefix, n)
	}
}
