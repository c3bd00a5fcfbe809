package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_CreateAndFind(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	j := New(TypeTranscription, "media/input.mp4", nil)
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	found, err := store.FindByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found.ID != j.ID {
		t.Errorf("expected ID %s, got %s", j.ID, found.ID)
	}

	if _, err := store.FindByID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ClaimExactlyOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	j := New(TypeMediaExport, "ref", nil)
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	const claimants = 16
	var wg sync.WaitGroup
	wins := make(chan string, claimants)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if claimed, err := store.Claim(ctx, j.ID); err == nil {
				wins <- claimed.ID
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("expected exactly one successful claim, got %d", won)
	}

	found, err := store.FindByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found.Status != StatusProcessing {
		t.Errorf("expected PROCESSING after claim, got %s", found.Status)
	}
}

func TestMemoryStore_ClaimNonQueued(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	j := New(TypeMediaExport, "ref", nil)
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := store.Cancel(ctx, j.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if _, err := store.Claim(ctx, j.ID); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("expected ErrAlreadyClaimed, got %v", err)
	}
	if _, err := store.Claim(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_MarkFailedRecordsStage(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	j := New(TypeTranscription, "ref", nil)
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := store.Claim(ctx, j.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := store.SetProgress(ctx, j.ID, 25, "extracting audio"); err != nil {
		t.Fatalf("set progress failed: %v", err)
	}

	if err := store.MarkFailed(ctx, j.ID, "transcribing audio", "api down"); err != nil {
		t.Fatalf("mark failed errored: %v", err)
	}
	found, err := store.FindByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found.Status != StatusFailed {
		t.Errorf("expected FAILED, got %s", found.Status)
	}
	if found.StageLabel != "transcribing audio" {
		t.Errorf("expected failing stage label, got %q", found.StageLabel)
	}
	if found.Progress != 25 {
		t.Errorf("expected progress frozen at 25, got %d", found.Progress)
	}
	if found.ErrorDetail != "api down" {
		t.Errorf("expected error detail, got %q", found.ErrorDetail)
	}
}

func TestMemoryStore_MarkCompleted(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	j := New(TypeBatchItem, "ref", nil)
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := store.Claim(ctx, j.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	if err := store.MarkCompleted(ctx, j.ID, "results/out.mp4"); err != nil {
		t.Fatalf("mark completed failed: %v", err)
	}
	found, _ := store.FindByID(ctx, j.ID)
	if found.Status != StatusCompleted || found.OutputRef != "results/out.mp4" || found.Progress != 100 {
		t.Errorf("unexpected completed job: status=%s output=%q progress=%d",
			found.Status, found.OutputRef, found.Progress)
	}

	// Completing twice is an invalid transition.
	if err := store.MarkCompleted(ctx, j.ID, "results/other.mp4"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	j := New(TypeBatchItem, "ref", nil)
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := store.Delete(ctx, j.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := store.Delete(ctx, j.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestMemoryStore_FailStuck(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	stuck := New(TypeTranscription, "ref", nil)
	fresh := New(TypeTranscription, "ref", nil)
	queued := New(TypeTranscription, "ref", nil)
	for _, j := range []*Job{stuck, fresh, queued} {
		if err := store.Create(ctx, j); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	if _, err := store.Claim(ctx, stuck.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if _, err := store.Claim(ctx, fresh.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	ids, err := store.FailStuck(ctx, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("fail stuck errored: %v", err)
	}
	if len(ids) != 1 || ids[0] != stuck.ID {
		t.Fatalf("expected only the stuck job to be failed, got %v", ids)
	}

	found, _ := store.FindByID(ctx, stuck.ID)
	if found.Status != StatusFailed {
		t.Errorf("expected stuck job FAILED, got %s", found.Status)
	}
	freshFound, _ := store.FindByID(ctx, fresh.ID)
	if freshFound.Status != StatusProcessing {
		t.Errorf("expected fresh job untouched, got %s", freshFound.Status)
	}
	queuedFound, _ := store.FindByID(ctx, queued.ID)
	if queuedFound.Status != StatusQueued {
		t.Errorf("expected queued job untouched, got %s", queuedFound.Status)
	}
}
