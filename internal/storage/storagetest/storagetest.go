// Package storagetest runs the same behavioural checks against every
// storage.Store implementation.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/domain"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/storage"
)

func entry(i int, content string, tags ...string) domain.MemoryEntry {
	return domain.MemoryEntry{
		Key:       fmt.Sprintf("mem_%03d", i),
		Kind:      domain.EntryNote,
		Content:   content,
		Tags:      tags,
		Data:      map[string]any{"n": float64(i)},
		CreatedAt: time.Now().UTC(),
	}
}

// Run exercises store. The store must start empty.
func Run(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("entries keep insertion order", func(t *testing.T) {
		for i := 1; i <= 7; i++ {
			if err := store.PutEntry(ctx, entry(i, fmt.Sprintf("note %d", i))); err != nil {
				t.Fatalf("PutEntry %d: %v", i, err)
			}
		}
		if err := store.PutEntry(ctx, entry(1, "dup")); err == nil {
			t.Fatal("expected duplicate key to be rejected")
		}

		n, err := store.CountEntries(ctx)
		if err != nil || n != 7 {
			t.Fatalf("CountEntries = %d, %v", n, err)
		}

		recent, err := store.RecentEntries(ctx, 5)
		if err != nil {
			t.Fatalf("RecentEntries: %v", err)
		}
		if len(recent) != 5 || recent[0].Key != "mem_003" || recent[4].Key != "mem_007" {
			t.Fatalf("unexpected recent entries: %+v", recent)
		}
		if recent[4].Data["n"] != float64(7) {
			t.Fatalf("entry data not preserved: %v", recent[4].Data)
		}
	})

	t.Run("search matches content and tags", func(t *testing.T) {
		store.PutEntry(ctx, entry(100, "Launch checklist", "launch"))
		store.PutEntry(ctx, entry(101, "budget", "LAUNCH", "money"))

		found, err := store.SearchEntries(ctx, "launch", 10)
		if err != nil {
			t.Fatalf("SearchEntries: %v", err)
		}
		if len(found) != 2 {
			t.Fatalf("expected 2 matches, got %d", len(found))
		}
		found, _ = store.SearchEntries(ctx, "launch", 1)
		if len(found) != 1 || found[0].Key != "mem_101" {
			t.Fatalf("limit should keep the newest match: %+v", found)
		}
	})

	t.Run("concurrent puts of one key store it once", func(t *testing.T) {
		before, err := store.CountEntries(ctx)
		if err != nil {
			t.Fatalf("CountEntries: %v", err)
		}

		var (
			wg     sync.WaitGroup
			stored atomic.Int32
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if store.PutEntry(ctx, entry(150, "race")) == nil {
					stored.Add(1)
				}
			}()
		}
		wg.Wait()

		after, err := store.CountEntries(ctx)
		if err != nil {
			t.Fatalf("CountEntries: %v", err)
		}
		if stored.Load() != 1 || after != before+1 {
			t.Fatalf("%d puts succeeded, count went %d -> %d", stored.Load(), before, after)
		}
	})

	t.Run("tags keep commas", func(t *testing.T) {
		if err := store.PutEntry(ctx, entry(200, "pricing", "a,b", "c")); err != nil {
			t.Fatalf("PutEntry: %v", err)
		}
		found, err := store.SearchEntries(ctx, "a,b", 10)
		if err != nil {
			t.Fatalf("SearchEntries: %v", err)
		}
		if len(found) != 1 || len(found[0].Tags) != 2 || found[0].Tags[0] != "a,b" || found[0].Tags[1] != "c" {
			t.Fatalf("tags not preserved: %+v", found)
		}
	})

	t.Run("search treats wildcards literally", func(t *testing.T) {
		store.PutEntry(ctx, entry(300, "discount 50% off"))
		store.PutEntry(ctx, entry(301, "discount 50 percent off"))
		store.PutEntry(ctx, entry(302, "file_name", `dir\tag`))
		store.PutEntry(ctx, entry(303, "filename"))

		cases := []struct {
			query string
			keys  []string
		}{
			{query: "50%", keys: []string{"mem_300"}},
			{query: "file_", keys: []string{"mem_302"}},
			{query: `dir\tag`, keys: []string{"mem_302"}},
		}
		for _, tc := range cases {
			found, err := store.SearchEntries(ctx, tc.query, 10)
			if err != nil {
				t.Fatalf("SearchEntries(%q): %v", tc.query, err)
			}
			if len(found) != len(tc.keys) {
				t.Fatalf("SearchEntries(%q) = %+v, want %v", tc.query, found, tc.keys)
			}
			for i, e := range found {
				if e.Key != tc.keys[i] {
					t.Fatalf("SearchEntries(%q) = %+v, want %v", tc.query, found, tc.keys)
				}
			}
		}
	})

	t.Run("projects round trip", func(t *testing.T) {
		p := domain.NewProject("Launch", "Beta launch")
		p.AddPhase(domain.Phase{Name: "Prep", Tasks: []domain.Task{{Name: "a"}, {Name: "b"}}})
		if err := store.SaveProject(ctx, p); err != nil {
			t.Fatalf("SaveProject: %v", err)
		}
		p.CompleteTask()
		if err := store.SaveProject(ctx, p); err != nil {
			t.Fatalf("SaveProject update: %v", err)
		}

		got, err := store.GetProject(ctx, p.ID)
		if err != nil {
			t.Fatalf("GetProject: %v", err)
		}
		if got.Name != "Launch" || got.CompletedTasks != 1 || got.Progress() != 50 {
			t.Fatalf("unexpected project: %+v", got)
		}

		if _, err := store.GetProject(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("conversations round trip", func(t *testing.T) {
		c := domain.NewConversation("user", "agent")
		c.AddMessage(domain.NewMessage("hi", domain.SenderUser))
		c.UpdateContext(map[string]any{"topic": "launch"})
		if err := store.SaveConversation(ctx, c); err != nil {
			t.Fatalf("SaveConversation: %v", err)
		}
		c.AddMessage(domain.NewMessage("hello", domain.SenderAgent))
		if err := store.SaveConversation(ctx, c); err != nil {
			t.Fatalf("SaveConversation update: %v", err)
		}

		got, err := store.GetConversation(ctx, c.ID)
		if err != nil {
			t.Fatalf("GetConversation: %v", err)
		}
		if got.MessageCount() != 2 {
			t.Fatalf("expected 2 messages, got %d", got.MessageCount())
		}
		last, _ := got.LastMessage()
		if !last.IsFromAgent() || last.Content() != "hello" {
			t.Fatalf("unexpected last message: %+v", last)
		}
		if got.Context["topic"] != "launch" {
			t.Fatalf("context lost: %v", got.Context)
		}

		if _, err := store.GetConversation(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
