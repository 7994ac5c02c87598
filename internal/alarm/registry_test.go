package alarm

import (
	"testing"
	"time"

	"github.com/hray3182/NoteAlarm/internal/models"
)

func TestRegistryUpsertKeepsOrder(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	reg := NewRegistry()
	reg.Upsert(models.Reminder{ID: "b", UserID: "u1", FireAt: base.Add(2 * time.Hour)})
	reg.Upsert(models.Reminder{ID: "a", UserID: "u1", FireAt: base.Add(time.Hour)})
	reg.Upsert(models.Reminder{ID: "b", UserID: "u1", FireAt: base.Add(30 * time.Minute)})

	got := reg.List("u1")
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("list=%+v", got)
	}
}

func TestRegistryListIsACopy(t *testing.T) {
	reg := NewRegistry()
	reg.Upsert(models.Reminder{ID: "a", UserID: "u1", Title: "orig", SchedulerHandle: models.StringPtr("h")})

	got := reg.List("u1")
	got[0].Title = "changed"
	*got[0].SchedulerHandle = "mutated"

	again := reg.List("u1")
	if again[0].Title != "orig" || again[0].Handle() != "h" {
		t.Fatalf("registry state leaked: %+v", again[0])
	}
}

func TestRegistryFiredTracking(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	reg := NewRegistry()
	reg.Upsert(models.Reminder{ID: "a", UserID: "u1", FireAt: at})

	if reg.Fired("a", at) {
		t.Fatal("fired before MarkFired")
	}
	reg.MarkFired("a", at)
	if !reg.Fired("a", at) {
		t.Fatal("not fired after MarkFired")
	}
	if reg.Fired("a", at.Add(10*time.Minute)) {
		t.Fatal("a snoozed fire time must count as a new alert")
	}
	reg.Remove("u1", "a")
	if reg.Fired("a", at) {
		t.Fatal("fired state survived removal")
	}
}

func TestRegistryUsersAndLookups(t *testing.T) {
	reg := NewRegistry()
	reg.Replace("u2", []models.Reminder{{ID: "x", UserID: "u2", SchedulerHandle: models.StringPtr("hx")}})
	reg.Replace("u1", nil)

	users := reg.Users()
	if len(users) != 2 || users[0] != "u1" || users[1] != "u2" {
		t.Fatalf("users=%v", users)
	}
	if r, ok := reg.FindByHandle("hx"); !ok || r.ID != "x" {
		t.Fatalf("FindByHandle=%+v,%v", r, ok)
	}
	if _, ok := reg.FindByHandle(""); ok {
		t.Fatal("empty handle matched")
	}
	if _, ok := reg.FindByID(""); ok {
		t.Fatal("empty id matched")
	}
}

func TestRegistryReplaceIfUnchanged(t *testing.T) {
	reg := NewRegistry()
	reg.Upsert(models.Reminder{ID: "a", UserID: "u1"})
	since := reg.Versions()["u1"]

	applied := false
	if !reg.ReplaceIfUnchanged("u1", []models.Reminder{{ID: "b", UserID: "u1"}}, since, func() { applied = true }) {
		t.Fatal("unchanged user not replaced")
	}
	if !applied || reg.List("u1")[0].ID != "b" {
		t.Fatalf("applied=%v list=%+v", applied, reg.List("u1"))
	}

	since = reg.Versions()["u1"]
	reg.Remove("u1", "b")
	if reg.ReplaceIfUnchanged("u1", []models.Reminder{{ID: "b", UserID: "u1"}}, since, nil) {
		t.Fatal("replaced over a newer remove")
	}

	since = reg.Versions()["u1"]
	done := reg.Begin("u1")
	if reg.ReplaceIfUnchanged("u1", nil, reg.Versions()["u1"], nil) {
		t.Fatal("replaced while a write is in progress")
	}
	done()
	done()
	if reg.ReplaceIfUnchanged("u1", nil, since, nil) {
		t.Fatal("replaced with a version from before the write")
	}
	if !reg.ReplaceIfUnchanged("u1", nil, reg.Versions()["u1"], nil) {
		t.Fatal("quiet user not replaced")
	}
	if !reg.ReplaceIfUnchanged("new", nil, 0, nil) {
		t.Fatal("unknown user with version 0 not replaced")
	}
}
