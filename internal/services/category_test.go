package services

import (
	"context"
	"errors"
	"testing"

	"github.com/eventdesk/apiserver/internal/store"
	"github.com/eventdesk/apiserver/types"
)

func TestCategoryService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.seedUser(t, "bob", types.RoleOrganizer)

	cat, err := f.categories.Create(ctx, "  Workshops ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if cat.Name != "Workshops" {
		t.Errorf("name = %q", cat.Name)
	}

	_, err = f.categories.Create(ctx, "Workshops")
	validationField(t, err, "name")
	_, err = f.categories.Create(ctx, "")
	validationField(t, err, "name")

	if _, err := f.events.Create(ctx, bob, eventInput(cat.ID), nil); err != nil {
		t.Fatalf("Create event: %v", err)
	}
	if err := f.categories.Delete(ctx, cat.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n := f.db.EventCount(); n != 0 {
		t.Errorf("events after category delete = %d, want 0", n)
	}
	if err := f.categories.Delete(ctx, cat.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}
