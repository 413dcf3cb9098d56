package candidates

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/okian/crosscam/internal/domain/model"
)

var base = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

func rec(id string, seenOffset time.Duration) model.TrackingRecord {
	return model.TrackingRecord{
		TrackingID:     id,
		LastSeenTime:   base.Add(seenOffset),
		FirstSeenTime:  base,
		TotalSightings: 1,
	}
}

func ids(recs []model.TrackingRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.TrackingID
	}
	return out
}

func TestIndex_BasicOperations(t *testing.T) {
	ix := New()

	if n := ix.Len(); n != 0 {
		t.Errorf("expected empty index, got %d", n)
	}

	_, existed := ix.Upsert(rec("a", 0))
	if existed {
		t.Error("expected first upsert to be an insert")
	}
	ix.Upsert(rec("b", 10*time.Second))
	ix.Upsert(rec("c", 20*time.Second))

	if n := ix.Len(); n != 3 {
		t.Errorf("expected 3 records, got %d", n)
	}

	got, ok := ix.Get("b")
	if !ok || !got.LastSeenTime.Equal(base.Add(10*time.Second)) {
		t.Errorf("unexpected record for b: %+v ok=%v", got, ok)
	}

	if _, ok := ix.Get("missing"); ok {
		t.Error("expected missing record to be absent")
	}
}

func TestIndex_SinceOrdersByRecency(t *testing.T) {
	ix := New()
	ix.Upsert(rec("c", 30*time.Second))
	ix.Upsert(rec("a", 10*time.Second))
	ix.Upsert(rec("b", 20*time.Second))
	ix.Upsert(rec("z", 20*time.Second))

	all := ids(ix.Since(base))
	want := []string{"a", "b", "z", "c"}
	if fmt.Sprint(all) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, all)
	}

	window := ids(ix.Since(base.Add(20 * time.Second)))
	want = []string{"b", "z", "c"}
	if fmt.Sprint(window) != fmt.Sprint(want) {
		t.Errorf("cutoff is inclusive: expected %v, got %v", want, window)
	}

	if got := ix.Since(base.Add(time.Hour)); len(got) != 0 {
		t.Errorf("expected nothing after the newest record, got %v", ids(got))
	}

	if got := ix.Since(time.Time{}); len(got) != 4 {
		t.Errorf("zero cutoff should return everything, got %d", len(got))
	}
}

func TestIndex_UpsertMovesRecord(t *testing.T) {
	ix := New()
	ix.Upsert(rec("a", 0))
	ix.Upsert(rec("b", 10*time.Second))

	moved := rec("a", time.Minute)
	moved.TotalSightings = 2
	prev, existed := ix.Upsert(moved)
	if !existed || prev.TotalSightings != 1 {
		t.Fatalf("expected previous version to be returned, got %+v existed=%v", prev, existed)
	}

	if n := ix.Len(); n != 2 {
		t.Errorf("expected 2 records after update, got %d", n)
	}
	order := ids(ix.Since(base))
	if fmt.Sprint(order) != "[b a]" {
		t.Errorf("expected updated record to move to the back, got %v", order)
	}
}

func TestIndex_DeletedRecordsAreDropped(t *testing.T) {
	ix := New()
	ix.Upsert(rec("a", 0))

	gone := rec("a", 0)
	at := base.Add(time.Hour)
	gone.DeletedAt = &at
	ix.Upsert(gone)

	if _, ok := ix.Get("a"); ok {
		t.Error("soft-deleted record must not stay in the index")
	}
	if n := ix.Len(); n != 0 {
		t.Errorf("expected empty index, got %d", n)
	}
}

func TestIndex_RemoveAndPrune(t *testing.T) {
	ix := New()
	for i := 0; i < 10; i++ {
		ix.Upsert(rec(fmt.Sprintf("r%02d", i), time.Duration(i)*time.Minute))
	}

	if _, ok := ix.Remove("r05"); !ok {
		t.Error("expected r05 to be removed")
	}
	if _, ok := ix.Remove("r05"); ok {
		t.Error("second remove should report absence")
	}

	dropped := ix.Prune(base.Add(4 * time.Minute))
	if dropped != 4 {
		t.Errorf("expected 4 pruned records, got %d", dropped)
	}
	left := ids(ix.Since(time.Time{}))
	want := []string{"r04", "r06", "r07", "r08", "r09"}
	if fmt.Sprint(left) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, left)
	}

	ix.Reset()
	if ix.Len() != 0 || len(ix.Since(time.Time{})) != 0 {
		t.Error("expected reset to empty the index")
	}
}

func TestIndex_ReturnsCopies(t *testing.T) {
	ix := New()
	r := rec("a", 0)
	r.LatestFeatures.SafetyGear = model.SafetyGear{"hasMask": true}
	ix.Upsert(r)

	r.LatestFeatures.SafetyGear["hasMask"] = false
	got, _ := ix.Get("a")
	if got.LatestFeatures.SafetyGear["hasMask"] != true {
		t.Error("index must hold its own copy of the record")
	}

	got.LatestFeatures.SafetyGear["hasMask"] = false
	again := ix.Since(base)[0]
	if again.LatestFeatures.SafetyGear["hasMask"] != true {
		t.Error("callers must receive copies")
	}
}

func TestIndex_TreeStaysConsistent(t *testing.T) {
	ix := New()
	r := rand.New(rand.NewSource(7))
	live := make(map[string]time.Duration)

	for i := 0; i < 2000; i++ {
		id := fmt.Sprintf("id-%03d", r.Intn(300))
		if r.Intn(5) == 0 {
			ix.Remove(id)
			delete(live, id)
			continue
		}
		off := time.Duration(r.Intn(10_000)) * time.Millisecond
		ix.Upsert(rec(id, off))
		live[id] = off
	}

	if ix.Len() != len(live) {
		t.Fatalf("expected %d records, got %d", len(live), ix.Len())
	}
	if nsize(ix.root) != len(live) {
		t.Fatalf("tree size %d does not match map size %d", nsize(ix.root), len(live))
	}

	all := ix.Since(time.Time{})
	for i := 1; i < len(all); i++ {
		if less(keyOf(all[i]), keyOf(all[i-1])) {
			t.Fatalf("records out of order at %d", i)
		}
	}
}

func TestIndex_ConcurrentAccess(t *testing.T) {
	ix := New()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				ix.Upsert(rec(fmt.Sprintf("w%d-%d", w, i%20), time.Duration(i)*time.Second))
				_ = ix.Since(base.Add(time.Duration(i/2) * time.Second))
			}
		}(w)
	}
	wg.Wait()

	if n := ix.Len(); n != 160 {
		t.Errorf("expected 160 distinct records, got %d", n)
	}
}
