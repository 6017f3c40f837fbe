// Package storagetest holds the behavior every storage.EventStore adapter
// must share. Adapter tests call Run with a constructor for a fresh store.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/storage"
)

// Run executes the shared store behavior tests. newStore must return an
// empty store; it is called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) storage.EventStore) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.EventStore)
	}{
		{"CreateAndExists", testCreateAndExists},
		{"InsertAndListOrdered", testInsertAndListOrdered},
		{"MaxOrderKey", testMaxOrderKey},
		{"OrderKeyConflict", testOrderKeyConflict},
		{"BatchIsAtomic", testBatchIsAtomic},
		{"DuplicateEventID", testDuplicateEventID},
		{"UnknownConversation", testUnknownConversation},
		{"UpdateEvent", testUpdateEvent},
		{"DeleteConversation", testDeleteConversation},
		{"TenantScoping", testTenantScoping},
		{"ConcurrentSameKey", testConcurrentSameKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// Event builds a database event with a single text segment.
func Event(id, conversationID, key, text string) api.DatabaseEvent {
	return api.DatabaseEvent{
		Event: api.Event{
			ID:        id,
			Role:      api.RoleUser,
			Segments:  api.Segments{&api.Text{Text: text}},
			Timestamp: time.UnixMilli(1700000000000).UTC(),
		},
		ConversationID: conversationID,
		OrderKey:       key,
	}
}

func mustCreate(t *testing.T, s storage.EventStore, ctx context.Context, id string) {
	t.Helper()
	if err := s.CreateConversation(ctx, id); err != nil {
		t.Fatalf("CreateConversation(%q): %v", id, err)
	}
}

func testCreateAndExists(t *testing.T, s storage.EventStore) {
	ctx := context.Background()
	mustCreate(t, s, ctx, "conv_a")

	ok, err := s.ConversationExists(ctx, "conv_a")
	if err != nil || !ok {
		t.Fatalf("ConversationExists = %v, %v; want true", ok, err)
	}
	ok, err = s.ConversationExists(ctx, "conv_missing")
	if err != nil || ok {
		t.Fatalf("ConversationExists(missing) = %v, %v; want false", ok, err)
	}
	if err := s.CreateConversation(ctx, "conv_a"); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("second CreateConversation = %v, want ErrAlreadyExists", err)
	}
}

func testInsertAndListOrdered(t *testing.T, s storage.EventStore) {
	ctx := context.Background()
	mustCreate(t, s, ctx, "conv_a")

	err := s.InsertEvents(ctx, "conv_a", []api.DatabaseEvent{
		Event("e3", "conv_a", "a2", "third"),
		Event("e1", "conv_a", "a0", "first"),
	})
	if err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}
	if err := s.InsertEvents(ctx, "conv_a", []api.DatabaseEvent{Event("e2", "conv_a", "a1", "second")}); err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}

	got, err := s.ListEvents(ctx, "conv_a")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	want := []string{"e1", "e2", "e3"}
	if len(got) != len(want) {
		t.Fatalf("ListEvents returned %d events, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("events[%d].ID = %q, want %q", i, got[i].ID, id)
		}
		if got[i].ConversationID != "conv_a" {
			t.Errorf("events[%d].ConversationID = %q", i, got[i].ConversationID)
		}
	}
	if text := got[0].Text(); text != "first" {
		t.Errorf("segments not preserved: %q", text)
	}
	if !got[0].Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("Timestamp = %v", got[0].Timestamp)
	}
}

func testMaxOrderKey(t *testing.T, s storage.EventStore) {
	ctx := context.Background()
	mustCreate(t, s, ctx, "conv_a")

	key, err := s.MaxOrderKey(ctx, "conv_a")
	if err != nil || key != "" {
		t.Fatalf("MaxOrderKey(empty) = %q, %v; want \"\"", key, err)
	}

	// Byte order puts "Zz" before "a0".
	events := []api.DatabaseEvent{
		Event("e1", "conv_a", "a0", "x"),
		Event("e2", "conv_a", "Zz", "y"),
		Event("e3", "conv_a", "a0V", "z"),
	}
	if err := s.InsertEvents(ctx, "conv_a", events); err != nil {
		t.Fatal(err)
	}
	key, err = s.MaxOrderKey(ctx, "conv_a")
	if err != nil || key != "a0V" {
		t.Errorf("MaxOrderKey = %q, %v; want a0V", key, err)
	}
}

func testOrderKeyConflict(t *testing.T, s storage.EventStore) {
	ctx := context.Background()
	mustCreate(t, s, ctx, "conv_a")
	mustCreate(t, s, ctx, "conv_b")

	if err := s.InsertEvents(ctx, "conv_a", []api.DatabaseEvent{Event("e1", "conv_a", "a0", "x")}); err != nil {
		t.Fatal(err)
	}
	err := s.InsertEvents(ctx, "conv_a", []api.DatabaseEvent{Event("e2", "conv_a", "a0", "y")})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("InsertEvents(same key) = %v, want ErrConflict", err)
	}

	// The same key in another conversation is fine.
	if err := s.InsertEvents(ctx, "conv_b", []api.DatabaseEvent{Event("e3", "conv_b", "a0", "z")}); err != nil {
		t.Errorf("InsertEvents(other conversation) = %v", err)
	}
}

func testBatchIsAtomic(t *testing.T, s storage.EventStore) {
	ctx := context.Background()
	mustCreate(t, s, ctx, "conv_a")
	if err := s.InsertEvents(ctx, "conv_a", []api.DatabaseEvent{Event("e1", "conv_a", "a1", "x")}); err != nil {
		t.Fatal(err)
	}

	err := s.InsertEvents(ctx, "conv_a", []api.DatabaseEvent{
		Event("e2", "conv_a", "a2", "ok"),
		Event("e3", "conv_a", "a1", "collides"),
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("InsertEvents = %v, want ErrConflict", err)
	}
	got, err := s.ListEvents(ctx, "conv_a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("failed batch left %d events, want 1", len(got))
	}
}

func testDuplicateEventID(t *testing.T, s storage.EventStore) {
	ctx := context.Background()
	mustCreate(t, s, ctx, "conv_a")
	if err := s.InsertEvents(ctx, "conv_a", []api.DatabaseEvent{Event("e1", "conv_a", "a0", "x")}); err != nil {
		t.Fatal(err)
	}
	err := s.InsertEvents(ctx, "conv_a", []api.DatabaseEvent{Event("e1", "conv_a", "a1", "y")})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("InsertEvents(reused id) = %v, want ErrAlreadyExists", err)
	}
}

func testUnknownConversation(t *testing.T, s storage.EventStore) {
	ctx := context.Background()
	if _, err := s.ListEvents(ctx, "conv_missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ListEvents = %v, want ErrNotFound", err)
	}
	err := s.InsertEvents(ctx, "conv_missing", []api.DatabaseEvent{Event("e1", "conv_missing", "a0", "x")})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("InsertEvents = %v, want ErrNotFound", err)
	}
	if _, err := s.MaxOrderKey(ctx, "conv_missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("MaxOrderKey = %v, want ErrNotFound", err)
	}
}

func testUpdateEvent(t *testing.T, s storage.EventStore) {
	ctx := context.Background()
	mustCreate(t, s, ctx, "conv_a")
	ev := Event("e1", "conv_a", "a0", "draft")
	if err := s.InsertEvents(ctx, "conv_a", []api.DatabaseEvent{ev}); err != nil {
		t.Fatal(err)
	}

	edited := ev.Event.Clone()
	edited.Segments = api.Segments{&api.Text{Text: "final"}}
	edited.Reasoning = &api.ReasoningSummary{Summary: "checked"}
	if err := s.UpdateEvent(ctx, "conv_a", edited); err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}

	got, err := s.ListEvents(ctx, "conv_a")
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Text() != "final" || got[0].OrderKey != "a0" {
		t.Errorf("after update: text %q key %q", got[0].Text(), got[0].OrderKey)
	}
	if got[0].Reasoning == nil || got[0].Reasoning.Summary != "checked" {
		t.Errorf("reasoning summary = %+v", got[0].Reasoning)
	}

	missing := api.NewEvent(api.RoleUser, &api.Text{Text: "x"})
	if err := s.UpdateEvent(ctx, "conv_a", missing); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("UpdateEvent(missing) = %v, want ErrNotFound", err)
	}
}

func testDeleteConversation(t *testing.T, s storage.EventStore) {
	ctx := context.Background()
	mustCreate(t, s, ctx, "conv_a")
	if err := s.InsertEvents(ctx, "conv_a", []api.DatabaseEvent{Event("e1", "conv_a", "a0", "x")}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteConversation(ctx, "conv_a"); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if ok, _ := s.ConversationExists(ctx, "conv_a"); ok {
		t.Error("conversation still exists after delete")
	}
	if err := s.DeleteConversation(ctx, "conv_a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second DeleteConversation = %v, want ErrNotFound", err)
	}

	// The id and its events are gone, so both can be reused.
	mustCreate(t, s, ctx, "conv_a")
	if err := s.InsertEvents(ctx, "conv_a", []api.DatabaseEvent{Event("e1", "conv_a", "a0", "x")}); err != nil {
		t.Errorf("reinsert after delete: %v", err)
	}
}

func testTenantScoping(t *testing.T, s storage.EventStore) {
	acme := storage.SetTenant(context.Background(), "acme")
	globex := storage.SetTenant(context.Background(), "globex")
	mustCreate(t, s, acme, "conv_a")

	if ok, _ := s.ConversationExists(globex, "conv_a"); ok {
		t.Error("other tenant can see the conversation")
	}
	if _, err := s.ListEvents(globex, "conv_a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ListEvents(other tenant) = %v, want ErrNotFound", err)
	}
	if ok, _ := s.ConversationExists(context.Background(), "conv_a"); !ok {
		t.Error("single-tenant context should see every conversation")
	}
}

func testConcurrentSameKey(t *testing.T, s storage.EventStore) {
	ctx := context.Background()
	mustCreate(t, s, ctx, "conv_a")

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := "e" + string(rune('a'+i))
			errs[i] = s.InsertEvents(ctx, "conv_a", []api.DatabaseEvent{Event(id, "conv_a", "a5", "race")})
		}()
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, storage.ErrConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Errorf("%d writers won the same key, want exactly 1", won)
	}
}
