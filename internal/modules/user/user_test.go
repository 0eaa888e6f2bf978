package user

import (
	"context"
	"testing"

	"caravan/internal/types"
)

func TestEnsureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore())

	u, err := svc.Ensure(ctx, EnsureCommand{ID: 10, Language: "ru"})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if u.Role != RoleCustomer || u.Language != "ru" {
		t.Fatalf("unexpected user %+v", u)
	}
	if err := svc.SetLanguage(ctx, 10, "en"); err != nil {
		t.Fatal(err)
	}
	again, err := svc.Ensure(ctx, EnsureCommand{ID: 10, Language: "uz"})
	if err != nil {
		t.Fatal(err)
	}
	if again.Language != "en" {
		t.Fatalf("second ensure must not overwrite the record, got %q", again.Language)
	}
}

func TestConfiguredAdminsAreRaised(t *testing.T) {
	svc := NewService(NewMemoryStore(), 99)
	u, err := svc.Ensure(context.Background(), EnsureCommand{ID: 99})
	if err != nil {
		t.Fatal(err)
	}
	if u.Role != RoleAdmin {
		t.Fatalf("role = %s, want admin", u.Role)
	}
}

func TestPromoteKeepsAdmin(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store, 1)
	for _, id := range []int64{1, 2} {
		if _, err := svc.Ensure(ctx, EnsureCommand{ID: types.UserID(id)}); err != nil {
			t.Fatal(err)
		}
	}
	p := Profile{FullName: "Driver", Phone: "+998901234567", Direction: "taxi", CarModel: "Cobalt", CarNumber: "01A123BC"}
	for _, id := range []int64{1, 2} {
		if err := svc.Promote(ctx, types.UserID(id), p); err != nil {
			t.Fatal(err)
		}
	}
	admin, _ := svc.Get(ctx, 1)
	driver, _ := svc.Get(ctx, 2)
	if admin.Role != RoleAdmin {
		t.Errorf("admin demoted to %s", admin.Role)
	}
	if driver.Role != RoleDriver || driver.CarModel != "Cobalt" {
		t.Errorf("unexpected driver %+v", driver)
	}
}

func TestAdjustBalanceNeverNegative(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Ensure(ctx, &User{ID: 5}); err != nil {
		t.Fatal(err)
	}
	if bal, ok, _ := store.AdjustBalance(5, 3); !ok || bal != 3 {
		t.Fatalf("credit: bal=%d ok=%v", bal, ok)
	}
	if bal, ok, _ := store.AdjustBalance(5, -4); ok || bal != 3 {
		t.Fatalf("overdraft must fail and keep balance: bal=%d ok=%v", bal, ok)
	}
	if _, _, err := store.AdjustBalance(6, 1); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetRoleRejectsUnknown(t *testing.T) {
	svc := NewService(NewMemoryStore())
	if err := svc.SetRole(context.Background(), 1, Role("owner")); err != ErrInvalidRole {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}
