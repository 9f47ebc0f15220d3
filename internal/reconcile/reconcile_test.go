package reconcile

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/nhle/pmsync/internal/model"
	"github.com/nhle/pmsync/internal/testutil"
)

type remoteItem struct {
	Key   string
	Title string
}

type localItem struct {
	ID    int
	Key   string
	Title string
}

// memSpec builds a Spec backed by a map, recording how many saves happen.
func memSpec(locals map[string]*localItem, saves *int) Spec[remoteItem, localItem] {
	nextID := len(locals) + 1
	return Spec[remoteItem, localItem]{
		Entity: "item",
		Key:    func(r remoteItem) string { return r.Key },
		Find: func(_ context.Context, r remoteItem) (*localItem, error) {
			l, ok := locals[r.Key]
			if !ok {
				return nil, nil
			}
			cp := *l
			return &cp, nil
		},
		Create: func(_ context.Context, r remoteItem) (localItem, error) {
			if r.Title == "skip" {
				return localItem{}, ErrSkip
			}
			nextID++
			return localItem{ID: nextID, Key: r.Key, Title: r.Title}, nil
		},
		Apply: func(_ context.Context, l *localItem, r remoteItem) (bool, error) {
			if r.Title == "" {
				return false, errors.New("missing title")
			}
			if l.Title == r.Title {
				return false, nil
			}
			l.Title = r.Title
			return true, nil
		},
		Save: func(_ context.Context, l localItem) error {
			*saves++
			cp := l
			locals[l.Key] = &cp
			return nil
		},
		Prune: &Prune[localItem]{
			List: func(context.Context) ([]localItem, error) {
				var out []localItem
				for _, l := range locals {
					out = append(out, *l)
				}
				sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
				return out, nil
			},
			Key: func(l localItem) string { return l.Key },
			Delete: func(_ context.Context, l localItem) error {
				delete(locals, l.Key)
				return nil
			},
		},
	}
}

func TestReconcileCreateUpdateUnchanged(t *testing.T) {
	locals := map[string]*localItem{
		"A": {ID: 1, Key: "A", Title: "same"},
		"B": {ID: 2, Key: "B", Title: "old"},
	}
	var saves int
	spec := memSpec(locals, &saves)

	res, err := Reconcile(context.Background(), spec, []remoteItem{
		{Key: "A", Title: "same"},
		{Key: "B", Title: "new"},
		{Key: "C", Title: "fresh"},
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	want := Result{Processed: 3, Created: 1, Updated: 1, Unchanged: 1}
	if res != want {
		t.Errorf("result = %+v, want %+v", res, want)
	}
	if saves != 2 {
		t.Errorf("saves = %d, want 2", saves)
	}
	if locals["B"].ID != 2 || locals["B"].Title != "new" {
		t.Errorf("B not updated in place: %+v", locals["B"])
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	locals := map[string]*localItem{}
	var saves int
	spec := memSpec(locals, &saves)
	records := []remoteItem{{Key: "A", Title: "a"}, {Key: "B", Title: "b"}}

	if _, err := Reconcile(context.Background(), spec, records); err != nil {
		t.Fatalf("first run: %v", err)
	}
	saves = 0
	res, err := Reconcile(context.Background(), spec, records)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Created != 0 || res.Updated != 0 || res.Deleted != 0 || res.Unchanged != 2 {
		t.Errorf("second run result = %+v", res)
	}
	if saves != 0 {
		t.Errorf("second run wrote %d records", saves)
	}
}

func TestReconcilePrunesAbsentButKeepsFailed(t *testing.T) {
	locals := map[string]*localItem{
		"A": {ID: 1, Key: "A", Title: "a"},
		"B": {ID: 2, Key: "B", Title: "b"},
		"C": {ID: 3, Key: "C", Title: "c"},
	}
	var saves int
	spec := memSpec(locals, &saves)

	// B is listed but malformed; C is gone remotely.
	res, err := Reconcile(context.Background(), spec, []remoteItem{
		{Key: "A", Title: "a"},
		{Key: "B", Title: ""},
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Failed != 1 || res.Deleted != 1 {
		t.Errorf("result = %+v", res)
	}
	if _, ok := locals["B"]; !ok {
		t.Error("record that failed to reconcile was pruned")
	}
	if _, ok := locals["C"]; ok {
		t.Error("absent record not pruned")
	}
}

func TestReconcileSkipAndPanicIsolation(t *testing.T) {
	locals := map[string]*localItem{}
	var saves int
	spec := memSpec(locals, &saves)
	spec.Prune = nil
	baseCreate := spec.Create
	spec.Create = func(ctx context.Context, r remoteItem) (localItem, error) {
		if r.Key == "BOOM" {
			panic("bad record")
		}
		return baseCreate(ctx, r)
	}

	res, err := Reconcile(context.Background(), spec, []remoteItem{
		{Key: "A", Title: "skip"},
		{Key: "BOOM", Title: "x"},
		{Key: "C", Title: "c"},
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	want := Result{Processed: 3, Created: 1, Skipped: 1, Failed: 1}
	if res != want {
		t.Errorf("result = %+v, want %+v", res, want)
	}
}

func TestReconcileStopsOnCancel(t *testing.T) {
	locals := map[string]*localItem{}
	var saves int
	spec := memSpec(locals, &saves)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Reconcile(ctx, spec, []remoteItem{{Key: "A", Title: "a"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if saves != 0 {
		t.Errorf("cancelled run wrote %d records", saves)
	}
}

func TestUserResolverStubIdentity(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	first := NewUserResolver(s)
	id1, err := first.Resolve(ctx, "acc-9", "Zoe")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	id2, err := first.Resolve(ctx, "acc-9", "Zoe")
	if err != nil {
		t.Fatalf("Resolve again: %v", err)
	}
	if id1 == nil || id2 == nil || *id1 != *id2 {
		t.Fatalf("ids differ: %v %v", id1, id2)
	}
	if first.StubsCreated() != 1 {
		t.Errorf("stubs created = %d", first.StubsCreated())
	}

	// A later run resolves to the same persistent user.
	second := NewUserResolver(s)
	id3, err := second.Resolve(ctx, "acc-9", "")
	if err != nil {
		t.Fatalf("Resolve in new run: %v", err)
	}
	if *id3 != *id1 || second.StubsCreated() != 0 {
		t.Errorf("new run created another user: %s vs %s", *id3, *id1)
	}

	u, err := s.GetUserByID(ctx, *id1)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if !u.IsStub || u.Email != model.StubEmail("acc-9") || u.DisplayName != "Zoe" {
		t.Errorf("stub = %+v", u)
	}

	none, err := second.Resolve(ctx, "  ", "")
	if err != nil || none != nil {
		t.Errorf("empty account resolved to %v, %v", none, err)
	}
}
