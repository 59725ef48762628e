package lf

import (
	"sync"
	"testing"
	"time"
)

func TestRunnerFIFOWithinScope(t *testing.T) {
	r := newRunner()
	var mu sync.Mutex
	var got []int

	release := make(chan struct{})
	first := r.submit(ReadWrite, []string{"a"}, func() ([]*Result, error) {
		<-release
		mu.Lock()
		got = append(got, 0)
		mu.Unlock()
		return nil, nil
	})
	var rest []*task
	for i := 1; i <= 5; i++ {
		i := i
		rest = append(rest, r.submit(ReadWrite, []string{"a"}, func() ([]*Result, error) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil, nil
		}))
	}
	close(release)
	first.await()
	for _, tk := range rest {
		tk.await()
	}

	deepEqual(t, got, []int{0, 1, 2, 3, 4, 5})
}

func TestRunnerDisjointScopesRunConcurrently(t *testing.T) {
	r := newRunner()
	aStarted := make(chan struct{})
	bStarted := make(chan struct{})

	ta := r.submit(ReadWrite, []string{"a"}, func() ([]*Result, error) {
		close(aStarted)
		<-bStarted // deadlocks unless b runs while a is still running
		return nil, nil
	})
	tb := r.submit(ReadWrite, []string{"b"}, func() ([]*Result, error) {
		<-aStarted
		close(bStarted)
		return nil, nil
	})
	ta.await()
	tb.await()
}

func TestRunnerReadersShareScope(t *testing.T) {
	r := newRunner()
	started := make(chan struct{}, 2)
	proceed := make(chan struct{})

	mk := func() func() ([]*Result, error) {
		return func() ([]*Result, error) {
			started <- struct{}{}
			<-proceed
			return nil, nil
		}
	}
	t1 := r.submit(ReadOnly, []string{"a"}, mk())
	t2 := r.submit(ReadOnly, []string{"a"}, mk())

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("read-only tasks with a shared scope must run concurrently")
		}
	}
	close(proceed)
	t1.await()
	t2.await()
}

func TestRunnerWriterExcludesReader(t *testing.T) {
	r := newRunner()
	inWrite := make(chan struct{})
	finishWrite := make(chan struct{})
	order := make(chan string, 2)

	w := r.submit(ReadWrite, []string{"a"}, func() ([]*Result, error) {
		close(inWrite)
		<-finishWrite
		order <- "w"
		return nil, nil
	})
	<-inWrite
	rd := r.submit(ReadOnly, []string{"a"}, func() ([]*Result, error) {
		order <- "r"
		return nil, nil
	})
	close(finishWrite)
	w.await()
	rd.await()

	deepEqual(t, <-order, "w")
	deepEqual(t, <-order, "r")
}

func TestRunnerCancelBeforeStart(t *testing.T) {
	r := newRunner()
	release := make(chan struct{})
	running := r.submit(ReadWrite, []string{"a"}, func() ([]*Result, error) {
		<-release
		return nil, nil
	})

	ran := false
	queued := r.submit(ReadWrite, []string{"a"}, func() ([]*Result, error) {
		ran = true
		return nil, nil
	})
	if !r.cancel(queued) {
		t.Fatal("pre-start cancellation must succeed")
	}
	_, err := queued.await()
	if CodeOf(err) != CodeTaskCancelled {
		t.Fatalf("got %v, wanted task cancelled", err)
	}

	close(release)
	running.await()
	if ran {
		t.Fatal("cancelled task must not run")
	}

	// A finished task cannot be cancelled either.
	if r.cancel(running) {
		t.Fatal("started task must not be cancellable")
	}
}

func TestSerialisability(t *testing.T) {
	db := setup(t, testSchema())
	_, err := db.Insert().Into("account").Values(map[string]any{"email": "a@b", "balance": int64(0)}).Exec()
	if err != nil {
		t.Fatal(err)
	}

	// Concurrently submitted writers over one scope take effect in
	// submission order; the final state matches the last submission.
	const n = 20
	tasks := make([]*Task, n)
	for i := 0; i < n; i++ {
		upd, err := db.Update("account").Set("balance", int64(i+1)).Where(Eq("email", "a@b")).Build()
		if err != nil {
			t.Fatal(err)
		}
		task, err := db.submitContexts([]*Context{upd})
		if err != nil {
			t.Fatal(err)
		}
		tasks[i] = task
	}
	for _, task := range tasks {
		if _, err := task.Await(); err != nil {
			t.Fatal(err)
		}
	}

	res, err := db.Select().From("account").Exec()
	if err != nil {
		t.Fatal(err)
	}
	deepEqual(t, res.Rows[0].Get("balance"), Int(n))
	deepEqual(t, db.Version(), uint64(n+1))
}
