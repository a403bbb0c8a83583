package selection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type call struct {
	op     string
	feedID string
	ids    []string
}

// fakeBackend stores one document and records every write.
type fakeBackend struct {
	mu       sync.Mutex
	doc      *Document
	calls    []call
	fetches  int
	failNext error
	// failAt fails the write with this 1-based call number.
	failAt int
	// gate, when set, blocks writes until it is closed; entered receives
	// one value per blocked write.
	gate    chan struct{}
	entered chan string
}

func (b *fakeBackend) Fetch(context.Context) (Document, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches++
	if b.doc == nil {
		return Document{}, false, nil
	}
	return Document{FeedID: b.doc.FeedID, SelectedEventIDs: slices.Clone(b.doc.SelectedEventIDs)}, true, nil
}

func (b *fakeBackend) wait(op string) {
	if b.gate == nil {
		return
	}
	b.entered <- op
	<-b.gate
}

func (b *fakeBackend) takeFailure() error {
	if b.failAt > 0 && b.failAt == len(b.calls) {
		return errors.New("write rejected")
	}
	err := b.failNext
	b.failNext = nil
	return err
}

func (b *fakeBackend) Create(_ context.Context, ids []string) (Document, error) {
	b.wait("create")
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call{op: "create", ids: slices.Clone(ids)})
	if err := b.takeFailure(); err != nil {
		return Document{}, err
	}
	if b.doc == nil {
		b.doc = &Document{FeedID: fmt.Sprintf("feed-%d", len(b.calls)), SelectedEventIDs: slices.Clone(ids)}
	}
	return Document{FeedID: b.doc.FeedID, SelectedEventIDs: slices.Clone(b.doc.SelectedEventIDs)}, nil
}

func (b *fakeBackend) Update(_ context.Context, feedID string, ids []string) error {
	b.wait("update")
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call{op: "update", feedID: feedID, ids: slices.Clone(ids)})
	if err := b.takeFailure(); err != nil {
		return err
	}
	if b.doc == nil || b.doc.FeedID != feedID {
		return errors.New("not found")
	}
	b.doc.SelectedEventIDs = slices.Clone(ids)
	return nil
}

func (b *fakeBackend) stored() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.doc == nil {
		return nil
	}
	return slices.Clone(b.doc.SelectedEventIDs)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSynchronizer(t *testing.T) {
	ctx := context.Background()

	Convey("Given a synchronizer for an attendee without a document", t, func() {
		backend := &fakeBackend{}
		syncer := New(backend, quietLogger())

		So(syncer.Load(ctx), ShouldBeNil)
		So(syncer.FeedID(), ShouldBeEmpty)

		Convey("the first toggle creates the document with the selection", func() {
			So(syncer.Toggle(ctx, "s1"), ShouldBeNil)
			So(syncer.FeedID(), ShouldEqual, "feed-1")
			So(syncer.State("s1"), ShouldEqual, Committed)
			So(backend.calls, ShouldResemble, []call{{op: "create", ids: []string{"s1"}}})

			Convey("and toggling twice restores the original selection", func() {
				So(syncer.Toggle(ctx, "s2"), ShouldBeNil)
				So(syncer.Toggle(ctx, "s2"), ShouldBeNil)
				So(syncer.Snapshot().Selected, ShouldResemble, []string{"s1"})
				So(backend.stored(), ShouldResemble, []string{"s1"})
			})
		})

		Convey("provisioning happens once", func() {
			first, err := syncer.EnsureProvisioned(ctx)
			So(err, ShouldBeNil)
			second, err := syncer.EnsureProvisioned(ctx)
			So(err, ShouldBeNil)
			So(second, ShouldEqual, first)
			So(backend.fetches, ShouldEqual, 2)
			So(len(backend.calls), ShouldEqual, 1)
		})

		Convey("a failed creation rolls the toggle back", func() {
			backend.failNext = errors.New("offline")
			err := syncer.Toggle(ctx, "s1")
			So(err, ShouldNotBeNil)
			So(syncer.IsSelected("s1"), ShouldBeFalse)
			So(syncer.State("s1"), ShouldEqual, RolledBack)
			So(syncer.FeedID(), ShouldBeEmpty)
		})
	})

	Convey("Given a synchronizer loaded from an existing document", t, func() {
		backend := &fakeBackend{doc: &Document{FeedID: "feed-a", SelectedEventIDs: []string{"s1", "s2", "s1"}}}
		syncer := New(backend, quietLogger())
		So(syncer.Load(ctx), ShouldBeNil)

		snap := syncer.Snapshot()
		So(snap.FeedID, ShouldEqual, "feed-a")
		So(snap.Selected, ShouldResemble, []string{"s1", "s2"})
		So(snap.States["s1"], ShouldEqual, Idle)

		Convey("a failed update reverts only the toggled id at its position", func() {
			So(syncer.Toggle(ctx, "s3"), ShouldBeNil)
			backend.failNext = errors.New("boom")
			So(syncer.Toggle(ctx, "s1"), ShouldNotBeNil)

			So(syncer.Snapshot().Selected, ShouldResemble, []string{"s1", "s2", "s3"})
			So(syncer.State("s1"), ShouldEqual, RolledBack)
			So(syncer.State("s3"), ShouldEqual, Committed)
		})

		Convey("EnsureProvisioned reuses the loaded feed id without writing", func() {
			feedID, err := syncer.EnsureProvisioned(ctx)
			So(err, ShouldBeNil)
			So(feedID, ShouldEqual, "feed-a")
			So(backend.calls, ShouldBeEmpty)
		})
	})

	Convey("Given a backend that already holds a document the client has not loaded", t, func() {
		backend := &fakeBackend{doc: &Document{FeedID: "feed-x", SelectedEventIDs: []string{"s9"}}}
		syncer := New(backend, quietLogger())

		Convey("a toggle adopts the existing feed and overwrites its selection", func() {
			So(syncer.Toggle(ctx, "s1"), ShouldBeNil)
			So(syncer.FeedID(), ShouldEqual, "feed-x")
			So(backend.stored(), ShouldResemble, []string{"s1"})
		})
	})

	Convey("Given a backend whose writes block", t, func() {
		backend := &fakeBackend{
			doc:     &Document{FeedID: "feed-b"},
			gate:    make(chan struct{}),
			entered: make(chan string, 4),
		}
		syncer := New(backend, quietLogger())
		So(syncer.Load(ctx), ShouldBeNil)

		errs := make(chan error, 2)
		go func() { errs <- syncer.Toggle(ctx, "s1") }()
		So(<-backend.entered, ShouldEqual, "update")

		Convey("a second toggle of the same id fails fast", func() {
			So(syncer.Toggle(ctx, "s1"), ShouldEqual, ErrPending)
			So(syncer.Snapshot().Pending, ShouldResemble, []string{"s1"})

			close(backend.gate)
			So(<-errs, ShouldBeNil)
			So(syncer.State("s1"), ShouldEqual, Committed)
		})

		Convey("a failed write does not undo a toggle an earlier write already persisted", func() {
			backend.mu.Lock()
			backend.failAt = 3
			backend.mu.Unlock()

			go func() { errs <- syncer.Toggle(ctx, "s2") }()
			for !slices.Contains(syncer.Snapshot().Pending, "s2") {
				runtime.Gosched()
			}
			go func() { errs <- syncer.Toggle(ctx, "s3") }()
			for !slices.Contains(syncer.Snapshot().Pending, "s3") {
				runtime.Gosched()
			}

			close(backend.gate)
			for i := 0; i < 3; i++ {
				So(<-errs, ShouldBeNil)
			}

			So(len(backend.calls), ShouldEqual, 3)
			So(backend.calls[1].ids, ShouldResemble, []string{"s1", "s2", "s3"})
			snap := syncer.Snapshot()
			So(snap.Selected, ShouldResemble, backend.stored())
			So(snap.States["s2"], ShouldEqual, Committed)
			So(snap.States["s3"], ShouldEqual, Committed)
		})

		Convey("writes are serialized and the last one carries every intent", func() {
			go func() { errs <- syncer.Toggle(ctx, "s2") }()
			for !slices.Contains(syncer.Snapshot().Pending, "s2") {
				runtime.Gosched()
			}

			close(backend.gate)
			So(<-errs, ShouldBeNil)
			So(<-errs, ShouldBeNil)

			So(len(backend.calls), ShouldEqual, 2)
			So(backend.calls[0].ids, ShouldResemble, []string{"s1"})
			So(backend.calls[1].ids, ShouldResemble, []string{"s1", "s2"})
			So(backend.stored(), ShouldResemble, []string{"s1", "s2"})
		})
	})
}

func TestStateString(t *testing.T) {
	Convey("States have stable names", t, func() {
		So(Idle.String(), ShouldEqual, "idle")
		So(Pending.String(), ShouldEqual, "pending")
		So(Committed.String(), ShouldEqual, "committed")
		So(RolledBack.String(), ShouldEqual, "rolled_back")
		So(State(9).String(), ShouldEqual, "State(9)")
	})
}
