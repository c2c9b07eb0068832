package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/queryai/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("When the key is new", func() {
			seen := d.SeenAndRecord(ctx, "doc-1")

			Convey("Then it should return false and record the key", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When the key was already seen", func() {
			d.SeenAndRecord(ctx, "doc-1")
			seen := d.SeenAndRecord(ctx, "doc-1")

			Convey("Then it should return true", func() {
				So(seen, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a key is unrecorded", func() {
			d.SeenAndRecord(ctx, "doc-1")
			d.Unrecord(ctx, "doc-1")
			d.Unrecord(ctx, "missing")

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "doc-1"), ShouldBeFalse)
			})
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
		d.SeenAndRecord(ctx, "a")
		d.SeenAndRecord(ctx, "b")
		d.SeenAndRecord(ctx, "c")

		Convey("Then the oldest key should be evicted", func() {
			So(d.Size(), ShouldEqual, 2)
			So(d.SeenAndRecord(ctx, "c"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "b"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 500; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("k-%d", i))
		}

		So(d.Size(), ShouldEqual, 500)
	})

	Convey("Given concurrent submissions of the same key", t, func() {
		d := dedupe.NewInMemoryDeduper()
		var wg sync.WaitGroup
		var mu sync.Mutex
		fresh := 0
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !d.SeenAndRecord(ctx, "same") {
					mu.Lock()
					fresh++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one should win", func() {
			So(fresh, ShouldEqual, 1)
		})
	})
}

func TestFingerprint(t *testing.T) {
	Convey("Given two texts that differ only in whitespace", t, func() {
		a := dedupe.Fingerprint("Knee surgery\n\nis covered   after 24 months.")
		b := dedupe.Fingerprint("Knee surgery is covered after 24 months.")

		Convey("Then their fingerprints should match", func() {
			So(a, ShouldEqual, b)
			So(len(a), ShouldEqual, 64)
			So(dedupe.Fingerprint("other text"), ShouldNotEqual, a)
		})
	})
}

func TestDocumentID(t *testing.T) {
	Convey("Given fingerprints of policy text", t, func() {
		knee := dedupe.Fingerprint("Knee surgery is covered after 24 months.")
		dental := dedupe.Fingerprint("Dental treatment is excluded.")

		Convey("Then the same content should always get the same id", func() {
			So(dedupe.DocumentID(knee), ShouldEqual, dedupe.DocumentID(knee))
			So(dedupe.DocumentID(knee), ShouldNotEqual, dedupe.DocumentID(dental))
			So(dedupe.DocumentID(knee), ShouldHaveLength, 36)
		})
	})
}
