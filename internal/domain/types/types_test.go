package types_test

import (
	"encoding/json"
	"testing"

	model "github.com/okian/queryai/internal/domain/model"
	types "github.com/okian/queryai/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFromScored(t *testing.T) {
	Convey("Given search hits", t, func() {
		hits := []model.ScoredChunk{
			{Chunk: model.Chunk{ID: "c1", Content: "Knee surgery waiting period is 24 months.", Source: "policy.pdf"}, Score: 0.91},
			{Chunk: model.Chunk{ID: "c2", Content: "Dental is excluded.", Source: "faq.md"}, Score: 0.74},
		}

		Convey("When converting them to source documents", func() {
			docs := types.FromScored(hits)

			Convey("Then content, source and score should be kept in order", func() {
				So(docs, ShouldHaveLength, 2)
				So(docs[0].Source, ShouldEqual, "policy.pdf")
				So(docs[1].Score, ShouldEqual, 0.74)
			})
		})

		Convey("When there are none", func() {
			docs := types.FromScored(nil)

			Convey("Then the list should encode as an empty array", func() {
				body, err := json.Marshal(types.RetrievalContext{SourceDocuments: docs})
				So(err, ShouldBeNil)
				So(string(body), ShouldContainSubstring, `"source_documents":[]`)
			})
		})
	})
}

func TestProcessResult(t *testing.T) {
	Convey("Given a rejected result without clauses", t, func() {
		res := types.ProcessResult{Decision: model.DecisionRejected, Justification: "No clause covers dental work."}

		Convey("Then amount is null in JSON", func() {
			body, err := json.Marshal(res)
			So(err, ShouldBeNil)
			So(string(body), ShouldContainSubstring, `"amount":null`)
			So(string(body), ShouldContainSubstring, `"decision":"REJECTED"`)
		})
	})
}
