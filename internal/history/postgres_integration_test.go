package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/zapagent/zapagent/internal/history"
	"github.com/zapagent/zapagent/internal/log"
	"github.com/zapagent/zapagent/internal/model"
	"github.com/zapagent/zapagent/internal/testutil"
)

func TestPostgres_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := history.NewPostgres(db.Pool, log.NewNop())

	base := time.Now().UTC().Truncate(time.Millisecond)
	turns := []model.Entry{
		{Role: model.RoleUser, Parts: []model.Part{{Text: "oi"}}, CreatedAt: base},
		{Role: model.RoleAssistant, Parts: []model.Part{{Text: "olá! como posso ajudar?"}}, CreatedAt: base.Add(time.Second)},
		{Role: model.RoleUser, Parts: []model.Part{{Text: "manda uma foto"}, {ImageRef: "media/x", MIME: "image/png"}}, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range turns {
		if err := store.Append(ctx, "conn-1", "5511999990000", e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := store.Window(ctx, "conn-1", "5511999990000", 10)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Role != model.RoleUser || got[1].Role != model.RoleAssistant {
		t.Errorf("entries out of order: %+v", got)
	}
	if len(got[2].Parts) != 2 || got[2].Parts[1].ImageRef != "media/x" {
		t.Errorf("media part lost: %+v", got[2].Parts)
	}

	n, err := store.Count(ctx, "conn-1", "5511999990000")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
}

func TestPostgres_AppendAllBatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := history.NewPostgres(db.Pool, log.NewNop())

	base := time.Now().UTC().Truncate(time.Millisecond)
	err := store.AppendAll(ctx, "conn-1", "5511999990000", []model.Entry{
		{Role: model.RoleUser, Parts: []model.Part{{Text: "tem estoque?"}}, CreatedAt: base},
		{Role: model.RoleTool, Parts: []model.Part{{Text: "[estoque] 3 unidades"}}, CreatedAt: base.Add(time.Second)},
		{Role: model.RoleAssistant, Parts: []model.Part{{Text: "Temos 3 unidades."}}, CreatedAt: base.Add(2 * time.Second)},
	})
	if err != nil {
		t.Fatalf("AppendAll: %v", err)
	}

	got, err := store.Window(ctx, "conn-1", "5511999990000", 10)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Role != model.RoleUser || got[1].Role != model.RoleTool || got[2].Role != model.RoleAssistant {
		t.Errorf("entries out of order: %+v", got)
	}
}

func TestPostgres_WindowLimitNewest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := history.NewPostgres(db.Pool, log.NewNop())

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		e := model.Entry{
			Role:      model.RoleUser,
			Parts:     []model.Part{{Text: string(rune('a' + i))}},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.Append(ctx, "c", "u", e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := store.Window(ctx, "c", "u", 2)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Text() != "d" || got[1].Text() != "e" {
		t.Errorf("window = [%q, %q], want the two newest oldest-first", got[0].Text(), got[1].Text())
	}
}

func TestPostgres_ClearScope(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := history.NewPostgres(db.Pool, log.NewNop())

	_ = store.Append(ctx, "c", "alice", model.TextEntry(model.RoleUser, "a"))
	_ = store.Append(ctx, "c", "bob", model.TextEntry(model.RoleUser, "b"))
	_ = store.Append(ctx, "other", "alice", model.TextEntry(model.RoleUser, "c"))

	if err := store.Clear(ctx, "c", "alice"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	for _, tc := range []struct {
		conn, cp string
		want     int64
	}{
		{"c", "alice", 0},
		{"c", "bob", 1},
		{"other", "alice", 1},
	} {
		n, err := store.Count(ctx, tc.conn, tc.cp)
		if err != nil {
			t.Fatalf("Count(%s,%s): %v", tc.conn, tc.cp, err)
		}
		if n != tc.want {
			t.Errorf("Count(%s,%s) = %d, want %d", tc.conn, tc.cp, n, tc.want)
		}
	}
}
