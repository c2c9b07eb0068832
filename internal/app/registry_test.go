package service

import (
	"context"
	"errors"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/queryai/internal/domain/dedupe"
	model "github.com/okian/queryai/internal/domain/model"
)

func TestJobRegistry(t *testing.T) {
	convey.Convey("Given a registry holding two jobs", t, func() {
		d := dedupe.NewInMemoryDeduper()
		ctx := context.Background()
		r := newJobRegistry(2, d)
		for _, id := range []string{"a", "b"} {
			d.SeenAndRecord(ctx, "fp-"+id)
			r.add(model.IngestJob{ID: id, Status: model.JobQueued, Document: model.Document{
				Source:      id + ".txt",
				Text:        "policy text " + id,
				Fingerprint: "fp-" + id,
			}})
		}

		convey.Convey("When a third job arrives while both are queued", func() {
			r.add(model.IngestJob{ID: "c", Status: model.JobQueued})

			convey.Convey("Then nothing pending should be evicted", func() {
				_, okA := r.get("a")
				_, okC := r.get("c")
				convey.So(okA, convey.ShouldBeTrue)
				convey.So(okC, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the oldest job finishes before a third arrives", func() {
			r.Report(ctx, "a", model.JobIndexed, 3, nil)
			r.add(model.IngestJob{ID: "c", Status: model.JobQueued})

			convey.Convey("Then the finished job should be evicted", func() {
				_, okA := r.get("a")
				_, okB := r.get("b")
				convey.So(okA, convey.ShouldBeFalse)
				convey.So(okB, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a job fails", func() {
			r.Report(ctx, "b", model.JobFailed, 0, errors.New("boom"))

			convey.Convey("Then the error should be recorded and the fingerprint forgotten", func() {
				j, ok := r.get("b")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(j.Status, convey.ShouldEqual, model.JobFailed)
				convey.So(j.Error, convey.ShouldEqual, "boom")
				convey.So(d.SeenAndRecord(ctx, "fp-b"), convey.ShouldBeFalse)
				convey.So(d.SeenAndRecord(ctx, "fp-a"), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When jobs reach a final state", func() {
			r.Report(ctx, "a", model.JobProcessing, 0, nil)
			processing, _ := r.get("a")

			r.Report(ctx, "a", model.JobIndexed, 2, nil)
			r.Report(ctx, "b", model.JobFailed, 0, errors.New("boom"))

			convey.Convey("Then their text should be released but the metadata kept", func() {
				convey.So(processing.Document.Text, convey.ShouldEqual, "policy text a")

				a, _ := r.get("a")
				b, _ := r.get("b")
				convey.So(a.Document.Text, convey.ShouldBeEmpty)
				convey.So(b.Document.Text, convey.ShouldBeEmpty)
				convey.So(a.Document.Source, convey.ShouldEqual, "a.txt")
				convey.So(a.Document.Fingerprint, convey.ShouldEqual, "fp-a")
				convey.So(a.Chunks, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When reporting an unknown job", func() {
			r.Report(ctx, "zzz", model.JobIndexed, 1, nil)

			convey.Convey("Then nothing should be added", func() {
				_, ok := r.get("zzz")
				convey.So(ok, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When removing a job", func() {
			r.remove("a")

			convey.Convey("Then it should be gone", func() {
				_, ok := r.get("a")
				convey.So(ok, convey.ShouldBeFalse)
				convey.So(r.order, convey.ShouldResemble, []string{"b"})
			})
		})
	})
}
