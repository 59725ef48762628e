package lf

import (
	"testing"
	"time"
)

func awaitNotification(t *testing.T, ch chan *Result) *Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for observer notification")
		return nil
	}
}

func expectSilence(t *testing.T, ch chan *Result) {
	t.Helper()
	select {
	case res := <-ch:
		t.Fatalf("unexpected notification: %v rows", len(res.Rows))
	case <-time.After(200 * time.Millisecond):
	}
}

func TestObserverCount(t *testing.T) {
	db := setup(t, testSchema())
	insertMovie(t, db, 1, "Unforgiven", 1992)
	insertMovie(t, db, 2, "Heat", 1995)
	insertMovie(t, db, 3, "Old One", 1960)

	ctx, err := db.Select(Count("id")).From("movie").
		Where(Between("year", Param(0), Param(1))).
		Bind(Int(1992), Int(2003)).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	ch := make(chan *Result, 16)
	cb := func(diff ResultDiff, res *Result) {
		ch <- res
	}
	if err := db.Observe(ctx, cb); err != nil {
		t.Fatal(err)
	}

	res := awaitNotification(t, ch)
	deepEqual(t, res.Rows[0].Get("count(movie.id)"), Int(2))

	// A movie inside the observed window triggers a notification.
	insertMovie(t, db, 4, "Ronin", 1998)
	res = awaitNotification(t, ch)
	deepEqual(t, res.Rows[0].Get("count(movie.id)"), Int(3))

	// A movie outside the window leaves the count unchanged; per the
	// engine's consistent choice, no notification is delivered.
	insertMovie(t, db, 5, "Ancient", 1980)
	expectSilence(t, ch)

	db.Unobserve(ctx, cb)
	insertMovie(t, db, 6, "Fresh", 1999)
	expectSilence(t, ch)
}

func TestObserverDiff(t *testing.T) {
	db := setup(t, testSchema())
	insertMovie(t, db, 1, "Heat", 1995)

	ctx, err := db.Select().From("movie").Where(Gte("year", 1990)).Build()
	if err != nil {
		t.Fatal(err)
	}

	diffs := make(chan ResultDiff, 16)
	cb := func(diff ResultDiff, res *Result) {
		diffs <- diff
	}
	if err := db.Observe(ctx, cb); err != nil {
		t.Fatal(err)
	}

	initial := <-diffs
	deepEqual(t, len(initial.Added), 1)

	insertMovie(t, db, 2, "Ronin", 1998)
	d := <-diffs
	deepEqual(t, len(d.Added), 1)
	deepEqual(t, len(d.Removed), 0)
	deepEqual(t, d.Added[0].Get("title"), Text("Ronin"))

	if _, err := db.Update("movie").Set("title", "Heat 2").Where(Eq("id", 1)).Exec(); err != nil {
		t.Fatal(err)
	}
	d = <-diffs
	deepEqual(t, len(d.Modified), 1)
	deepEqual(t, d.Modified[0].Get("title"), Text("Heat 2"))

	if _, err := db.Delete().From("movie").Where(Eq("id", 2)).Exec(); err != nil {
		t.Fatal(err)
	}
	d = <-diffs
	deepEqual(t, len(d.Removed), 1)
}

func TestObserverUnrelatedTable(t *testing.T) {
	db := setup(t, testSchema())

	ctx, err := db.Select().From("movie").Build()
	if err != nil {
		t.Fatal(err)
	}
	ch := make(chan *Result, 16)
	cb := func(diff ResultDiff, res *Result) { ch <- res }
	if err := db.Observe(ctx, cb); err != nil {
		t.Fatal(err)
	}
	awaitNotification(t, ch) // initial materialisation

	// Commits to other tables never touch this entry.
	if _, err := db.Insert().Into("account").Values(map[string]any{"email": "a@b"}).Exec(); err != nil {
		t.Fatal(err)
	}
	expectSilence(t, ch)
}

func TestObserverStructuralIdentity(t *testing.T) {
	db := setup(t, testSchema())

	ctx1, err := db.Select().From("movie").Where(Eq("year", 1995)).Build()
	if err != nil {
		t.Fatal(err)
	}
	ctx2, err := db.Select().From("movie").Where(Eq("year", 1995)).Build()
	if err != nil {
		t.Fatal(err)
	}
	if ctx1.fingerprint() != ctx2.fingerprint() {
		t.Fatal("semantically equal queries must share an identity")
	}
	if ctx1.Version() == ctx2.Version() {
		t.Fatal("each frozen context gets its own version")
	}

	ch1 := make(chan *Result, 16)
	ch2 := make(chan *Result, 16)
	cb1 := func(diff ResultDiff, res *Result) { ch1 <- res }
	cb2 := func(diff ResultDiff, res *Result) { ch2 <- res }
	ensure(db.Observe(ctx1, cb1))
	ensure(db.Observe(ctx2, cb2))
	awaitNotification(t, ch1)
	awaitNotification(t, ch2)

	db.observers.mu.Lock()
	entries := len(db.observers.entries)
	db.observers.mu.Unlock()
	deepEqual(t, entries, 1)

	// Removing the last subscriber evicts the entry.
	db.Unobserve(ctx1, cb1)
	db.Unobserve(ctx2, cb2)
	db.observers.mu.Lock()
	entries = len(db.observers.entries)
	db.observers.mu.Unlock()
	deepEqual(t, entries, 0)
}

func TestObserverCallbackPanicIsContained(t *testing.T) {
	db := setup(t, testSchema())
	ctx, err := db.Select().From("movie").Build()
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{}, 16)
	cb := func(diff ResultDiff, res *Result) {
		done <- struct{}{}
		panic("broken subscriber")
	}
	ensure(db.Observe(ctx, cb))
	<-done

	// The commit pipeline keeps working after the panic.
	insertMovie(t, db, 1, "Heat", 1995)
	<-done

	res, err := db.Select().From("movie").Exec()
	if err != nil {
		t.Fatal(err)
	}
	deepEqual(t, len(res.Rows), 1)
}
