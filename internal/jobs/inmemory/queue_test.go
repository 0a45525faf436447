package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fincontrols/navrecon/internal/jobs"
)

func TestQueue_PublishAndProcess(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, 1, store)
	defer queue.Close()

	done := make(chan string, 1)
	handler := func(ctx context.Context, job jobs.Job) error {
		done <- job.GetID()
		return nil
	}
	if err := queue.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := &jobs.ReconcileJob{Entity: "NG", ConfigPath: "configs/ng.yaml"}
	if err := queue.PublishReconcile(context.Background(), job); err != nil {
		t.Fatalf("PublishReconcile failed: %v", err)
	}
	if job.JobID == "" {
		t.Error("publish did not assign a job ID")
	}

	select {
	case id := <-done:
		if id != job.JobID {
			t.Errorf("handler saw job %s, want %s", id, job.JobID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job was never processed")
	}

	// The store eventually reflects completion; poll briefly since the final
	// save happens after the handler returns.
	deadline := time.Now().Add(2 * time.Second)
	for {
		saved, err := store.GetJob(context.Background(), job.JobID)
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if saved.Status == jobs.JobStatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job status = %s, want completed", saved.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestQueue_RetriesUntilMaxThenFails(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, 1, store)
	defer queue.Close()

	var mu sync.Mutex
	attempts := 0
	handler := func(ctx context.Context, job jobs.Job) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("warehouse unavailable")
	}
	if err := queue.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := &jobs.ReconcileJob{Entity: "NG", ConfigPath: "configs/ng.yaml", MaxRetries: 1}
	if err := queue.PublishReconcile(context.Background(), job); err != nil {
		t.Fatalf("PublishReconcile failed: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		saved, err := store.GetJob(context.Background(), job.JobID)
		if err == nil && saved.Status == jobs.JobStatusFailed {
			if saved.Error == "" {
				t.Error("failed job carries no error message")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never reached failed status")
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	got := attempts
	mu.Unlock()
	if got != 2 {
		t.Errorf("attempts = %d, want 2 (original plus one retry)", got)
	}
}

func TestQueue_PublishRequiresEntity(t *testing.T) {
	queue := NewQueue(1, 1, NewStore())
	defer queue.Close()

	err := queue.PublishReconcile(context.Background(), &jobs.ReconcileJob{ConfigPath: "x.yaml"})
	if err == nil {
		t.Fatal("PublishReconcile accepted a job without an entity")
	}
}

func TestQueue_PublishAfterCloseFails(t *testing.T) {
	queue := NewQueue(1, 1, nil)
	if err := queue.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	err := queue.PublishReconcile(context.Background(), &jobs.ReconcileJob{Entity: "NG"})
	if err == nil {
		t.Fatal("PublishReconcile succeeded on a closed queue")
	}
}

func TestStore_ListJobsFiltersAndOrders(t *testing.T) {
	store := NewStore()
	base := time.Now()

	seed := []*jobs.ReconcileJob{
		{JobID: "a", Entity: "NG", Status: jobs.JobStatusCompleted, CreatedAt: base.Add(-2 * time.Hour)},
		{JobID: "b", Entity: "EG", Status: jobs.JobStatusFailed, CreatedAt: base.Add(-1 * time.Hour)},
		{JobID: "c", Entity: "NG", Status: jobs.JobStatusPending, CreatedAt: base},
	}
	for _, j := range seed {
		if err := store.SaveJob(context.Background(), j); err != nil {
			t.Fatalf("SaveJob(%s) failed: %v", j.JobID, err)
		}
	}

	ng, err := store.ListJobs(context.Background(), jobs.JobFilter{Entity: "NG"})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(ng) != 2 || ng[0].JobID != "c" || ng[1].JobID != "a" {
		t.Errorf("NG jobs = %v, want [c a] newest first", jobIDs(ng))
	}

	failed, err := store.ListJobs(context.Background(), jobs.JobFilter{Status: jobs.JobStatusFailed})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(failed) != 1 || failed[0].JobID != "b" {
		t.Errorf("failed jobs = %v, want [b]", jobIDs(failed))
	}

	page, err := store.ListJobs(context.Background(), jobs.JobFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(page) != 1 || page[0].JobID != "b" {
		t.Errorf("page = %v, want [b]", jobIDs(page))
	}
}

func TestStore_CopiesOnReadAndWrite(t *testing.T) {
	store := NewStore()
	job := &jobs.ReconcileJob{JobID: "a", Entity: "NG"}
	if err := store.SaveJob(context.Background(), job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	job.Entity = "EG" // mutation after save must not leak in

	got, err := store.GetJob(context.Background(), "a")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Entity != "NG" {
		t.Errorf("stored entity = %q, want NG", got.Entity)
	}

	got.Status = jobs.JobStatusFailed // mutation after read must not leak in
	again, _ := store.GetJob(context.Background(), "a")
	if again.Status == jobs.JobStatusFailed {
		t.Error("read copy mutation leaked into the store")
	}
}

func jobIDs(js []*jobs.ReconcileJob) []string {
	ids := make([]string, len(js))
	for i, j := range js {
		ids[i] = j.JobID
	}
	return ids
}
