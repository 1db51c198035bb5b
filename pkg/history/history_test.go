package history_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/haivivi/voysis/go/pkg/history"
	"github.com/haivivi/voysis/go/pkg/voysis"
)

func newStore(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.Open(history.Options{
		InMemory: true,
		Logger:   slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func record(id string, offset time.Duration) history.Record {
	return history.Record{
		ID:        id,
		Locale:    "en-US",
		QueryType: voysis.QueryTypeText,
		SelfHref:  "/queries/" + id,
		CreatedAt: base.Add(offset),
	}
}

func TestOpenRequiresDir(t *testing.T) {
	if _, err := history.Open(history.Options{}); err == nil {
		t.Error("Open without Dir succeeded")
	}
}

func TestFromQuery(t *testing.T) {
	q := &voysis.Query{
		ID:             "q1",
		Locale:         "en-US",
		QueryType:      voysis.QueryTypeAudio,
		ConversationID: "c1",
		TextQuery:      &voysis.TextQuery{Text: "show me shoes"},
		Intent:         "search",
		Reply:          &voysis.Reply{Text: "here you go"},
		Links:          voysis.QueryLinks{Self: voysis.Link{Href: "/queries/q1"}},
	}
	r := history.FromQuery(q, base)
	if r.Text != "show me shoes" || r.Reply != "here you go" || r.SelfHref != "/queries/q1" || r.ConversationID != "c1" {
		t.Errorf("FromQuery = %+v", r)
	}

	back := r.Query()
	if back.ID != "q1" || back.Links.Self.Href != "/queries/q1" || back.ConversationID != "c1" {
		t.Errorf("Query = %+v", back)
	}
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if _, err := s.Get(ctx, "q1"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
	want := record("q1", 0)
	want.Text = "hello"
	if err := s.Put(ctx, want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "q1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != want.ID || got.Text != want.Text || got.SelfHref != want.SelfHref || !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
	if err := s.Put(ctx, history.Record{}); err == nil {
		t.Error("Put without id succeeded")
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for i, id := range []string{"a", "b", "c"} {
		if err := s.Put(ctx, record(id, time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Put %s: %v", id, err)
		}
	}

	all, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[1].ID != "b" || all[2].ID != "a" {
		t.Fatalf("List = %+v", all)
	}

	two, err := s.List(ctx, 2)
	if err != nil || len(two) != 2 || two[0].ID != "c" {
		t.Fatalf("List(2) = %+v, %v", two, err)
	}

	latest, err := s.Latest(ctx)
	if err != nil || latest.ID != "c" {
		t.Fatalf("Latest = %+v, %v", latest, err)
	}
}

func TestSetRatingKeepsOneRecord(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if err := s.Put(ctx, record("q1", 0)); err != nil {
		t.Fatal(err)
	}
	if err := s.SetRating(ctx, "q1", 4); err != nil {
		t.Fatalf("SetRating: %v", err)
	}
	got, err := s.Get(ctx, "q1")
	if err != nil || got.Rating != 4 || got.RatingString() != "4" {
		t.Fatalf("Get = %+v, %v", got, err)
	}

	// Re-putting with a new timestamp moves the record.
	moved := record("q1", time.Hour)
	if err := s.Put(ctx, moved); err != nil {
		t.Fatal(err)
	}
	all, err := s.List(ctx, 0)
	if err != nil || len(all) != 1 || !all[0].CreatedAt.Equal(moved.CreatedAt) {
		t.Fatalf("List = %+v, %v", all, err)
	}
	if all[0].RatingString() != "-" {
		t.Errorf("RatingString = %q", all[0].RatingString())
	}

	if err := s.SetRating(ctx, "missing", 1); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("SetRating missing = %v", err)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for i, id := range []string{"a", "b"} {
		if err := s.Put(ctx, record(id, time.Duration(i))); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.Clear(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Clear = %d, %v", n, err)
	}
	if _, err := s.Latest(ctx); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("Latest after Clear = %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("Get after Clear = %v", err)
	}
}

func TestOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := history.Open(history.Options{Dir: dir, Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Put(ctx, record("q1", 0)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = history.Open(history.Options{Dir: dir, Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.Get(ctx, "q1"); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}
}
