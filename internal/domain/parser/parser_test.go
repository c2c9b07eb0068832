package parser_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/queryai/internal/adapters/llm"
	"github.com/okian/queryai/internal/adapters/llm/llmtest"
	model "github.com/okian/queryai/internal/domain/model"
	"github.com/okian/queryai/internal/domain/parser"
	"github.com/okian/queryai/pkg/logger"
)

const kneeQuery = "I'm a 46-year-old male needing knee surgery in Pune. Does my 3-month policy cover this?"

const kneeJSON = "```json\n" + `{
  "age": 46,
  "gender": "M",
  "procedure": "knee surgery",
  "location": "Pune",
  "policy_duration_months": "3",
  "query_type": "Coverage",
  "keywords": ["knee surgery", "waiting period"]
}` + "\n```"

func newParser(t *testing.T, gen llm.Generator, opts ...parser.Option) *parser.Parser {
	t.Helper()
	if err := logger.Init(); err != nil {
		t.Fatalf("logger init: %v", err)
	}
	return parser.New(gen, opts...)
}

func TestParse(t *testing.T) {
	ctx := context.Background()

	Convey("Given a parser", t, func() {
		fake := llmtest.New()
		p := newParser(t, fake, parser.WithTemperature(0.3))

		Convey("A fenced JSON answer is decoded", func() {
			fake.Respond("structure_query", kneeJSON)
			q := p.Parse(ctx, kneeQuery)

			So(*q.Age, ShouldEqual, 46)
			So(*q.Gender, ShouldEqual, "M")
			So(*q.Procedure, ShouldEqual, "knee surgery")
			So(*q.Location, ShouldEqual, "Pune")
			So(*q.PolicyDurationMonths, ShouldEqual, 3)
			So(q.QueryType, ShouldEqual, model.QueryCoverage)
			So(q.Keywords, ShouldResemble, []string{"knee surgery", "waiting period"})
			So(q.OriginalQuery, ShouldEqual, kneeQuery)

			calls := fake.CallsNamed("structure_query")
			So(calls, ShouldHaveLength, 1)
			So(calls[0].Temperature, ShouldEqual, 0.3)
			So(calls[0].JSON, ShouldBeTrue)
			So(calls[0].Messages[0].Text, ShouldContainSubstring, "Query: "+kneeQuery)
		})

		Convey("Unknown query types become general", func() {
			fake.Respond("structure_query", `{"query_type": "billing", "keywords": []}`)
			q := p.Parse(ctx, "how do I pay")
			So(q.QueryType, ShouldEqual, model.QueryGeneral)
			So(q.Keywords, ShouldBeEmpty)
			So(q.Age, ShouldBeNil)
		})

		Convey("Answers without JSON fall back", func() {
			fake.Respond("structure_query", "I cannot help with that.")
			q := p.Parse(ctx, "dental exclusions")
			So(q, ShouldResemble, model.FallbackQuery("dental exclusions"))
		})

		Convey("Malformed JSON falls back", func() {
			fake.Respond("structure_query", `{"age": 46,,}`)
			q := p.Parse(ctx, "dental exclusions")
			So(q.QueryType, ShouldEqual, model.QueryGeneral)
			So(q.Keywords, ShouldResemble, []string{"dental exclusions"})
		})

		Convey("Generator errors fall back", func() {
			fake.Fail("structure_query", errors.New("quota"))
			q := p.Parse(ctx, "maternity")
			So(q.OriginalQuery, ShouldEqual, "maternity")
			So(q.QueryType, ShouldEqual, model.QueryGeneral)
		})
	})
}

func TestEnhance(t *testing.T) {
	ctx := context.Background()

	Convey("Given a parsed query", t, func() {
		fake := llmtest.New()
		p := newParser(t, fake)
		parsed := model.ParsedQuery{
			QueryType:     model.QueryCoverage,
			Keywords:      []string{"knee surgery", "Pune"},
			OriginalQuery: kneeQuery,
		}

		Convey("Phrases follow keywords with markers stripped and duplicates removed", func() {
			fake.Respond("enhance_query", "Search Phrases:\n1. \"knee replacement waiting period\"\n- orthopedic surgery coverage\n\n* knee surgery\n2) 24 month exclusion clause")
			terms := p.Enhance(ctx, parsed)
			So(terms, ShouldResemble, []string{
				"knee surgery",
				"Pune",
				"knee replacement waiting period",
				"orthopedic surgery coverage",
				"24 month exclusion clause",
			})

			call := fake.CallsNamed("enhance_query")[0]
			So(call.JSON, ShouldBeFalse)
			So(call.Messages[0].Text, ShouldContainSubstring, "Original Query: "+kneeQuery)
			So(call.Messages[0].Text, ShouldContainSubstring, `"query_type": "coverage"`)
		})

		Convey("Errors return the keywords", func() {
			fake.Fail("enhance_query", errors.New("timeout"))
			So(p.Enhance(ctx, parsed), ShouldResemble, []string{"knee surgery", "Pune"})
		})

		Convey("Errors without keywords return the original query", func() {
			fake.Fail("enhance_query", errors.New("timeout"))
			parsed.Keywords = nil
			So(p.Enhance(ctx, parsed), ShouldResemble, []string{kneeQuery})
		})
	})
}

func TestProcess(t *testing.T) {
	ctx := context.Background()

	Convey("Given a parser with both prompts scripted", t, func() {
		fake := llmtest.New().
			Respond("structure_query", kneeJSON).
			Respond("enhance_query", "knee arthroscopy coverage")
		p := newParser(t, fake)

		Convey("Process stores the enhanced phrases", func() {
			q := p.Process(ctx, kneeQuery)
			So(q.EnhancedSearchPhrases, ShouldResemble, []string{"knee surgery", "waiting period", "knee arthroscopy coverage"})
		})

		Convey("SearchTerms returns the phrases", func() {
			terms := p.SearchTerms(ctx, kneeQuery)
			So(terms, ShouldHaveLength, 3)
		})

		Convey("SearchTerms falls back to the query when nothing is produced", func() {
			fake.Respond("structure_query", `{"keywords": []}`).Respond("enhance_query", "   ")
			So(p.SearchTerms(ctx, "premium"), ShouldResemble, []string{"premium"})
		})

		Convey("The enhancement prompt never sees previous phrases", func() {
			_ = p.Process(ctx, kneeQuery)
			text := fake.CallsNamed("enhance_query")[0].Messages[0].Text
			So(strings.Contains(text, "enhanced_search_phrases"), ShouldBeFalse)
		})
	})
}
