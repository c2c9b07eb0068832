package decision_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/queryai/internal/adapters/llm"
	"github.com/okian/queryai/internal/adapters/llm/llmtest"
	"github.com/okian/queryai/internal/domain/coverage"
	"github.com/okian/queryai/internal/domain/decision"
	model "github.com/okian/queryai/internal/domain/model"
	"github.com/okian/queryai/pkg/logger"
)

type stubParser struct {
	mu     sync.Mutex
	parsed model.ParsedQuery
	calls  int
}

func (s *stubParser) Parse(ctx context.Context, query string) model.ParsedQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	p := s.parsed
	p.OriginalQuery = query
	return p
}

type stubRetriever struct {
	hits []model.ScoredChunk
	err  error
}

func (s *stubRetriever) RetrieveClauses(ctx context.Context, query string) ([]model.ScoredChunk, error) {
	return s.hits, s.err
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func amount(d model.Decision) int64 { return *d.Amount }

var kneeClauses = []model.ScoredChunk{
	{Chunk: model.Chunk{ID: "p-0001", Source: "policy.pdf", Content: "Joint replacement requires 24 months of continuous cover."}, Score: 0.91},
	{Chunk: model.Chunk{ID: "p-0002", Source: "policy.pdf", Content: "Emergency orthopaedic care is covered from day one."}, Score: 0.82},
}

const approved = `Here is the decision:
{"decision": "approved", "amount": "₹1,20,000", "justification": "Clause 4.2 covers emergency care.", "risk_factors": ["Emergency admission"], "coverage_status": "Partial"}`

func setup(t *testing.T) (*decision.Engine, *llmtest.Fake, *stubParser, *stubRetriever) {
	t.Helper()
	if err := logger.Init(); err != nil {
		t.Fatalf("logger init: %v", err)
	}
	gen := llmtest.New()
	parser := &stubParser{parsed: model.ParsedQuery{
		Age:                  intPtr(46),
		Gender:               strPtr("M"),
		Procedure:            strPtr("knee surgery"),
		Location:             strPtr("Pune"),
		PolicyDurationMonths: intPtr(3),
		QueryType:            model.QueryClaim,
	}}
	retriever := &stubRetriever{hits: kneeClauses}
	e := decision.New(parser, retriever, gen,
		decision.WithRules(coverage.NewRules()),
		decision.WithDefaultPayout(75000),
		decision.WithConcurrency(2),
	)
	return e, gen, parser, retriever
}

func TestDecide(t *testing.T) {
	ctx := context.Background()
	const query = "46-year-old male needs knee surgery in Pune with 3 months policy duration"

	Convey("Given a decision engine", t, func() {
		e, gen, parser, retriever := setup(t)

		Convey("A model verdict is normalised and enriched", func() {
			gen.Respond("claim_decision", approved)
			d := e.Decide(ctx, query, nil)

			So(d.Decision, ShouldEqual, model.DecisionApproved)
			So(amount(d), ShouldEqual, 120000)
			So(d.CoverageStatus, ShouldEqual, model.CoveragePartial)
			So(d.Query, ShouldEqual, query)
			So(d.ClausesCount, ShouldEqual, 2)
			So(d.ClauseMapping, ShouldBeNil)
			So(d.PatientDetails.Age, ShouldEqual, "46")
			So(d.PatientDetails.PolicyDuration, ShouldEqual, "3")
			So(d.RiskFactors[0], ShouldEqual, "Emergency admission")
			So(strings.Join(d.RiskFactors, "|"), ShouldContainSubstring, "waiting period")
			So(parser.calls, ShouldEqual, 1)

			prompt := gen.CallsNamed("claim_decision")[0].Messages[0].Text
			So(prompt, ShouldContainSubstring, kneeClauses[0].Content+"\n\n"+kneeClauses[1].Content)
			So(prompt, ShouldContainSubstring, "- Procedure: knee surgery")
			So(prompt, ShouldContainSubstring, "- Policy Duration (months): 3")
			So(prompt, ShouldContainSubstring, "default ₹75,000 for standard surgery")
			So(prompt, ShouldContainSubstring, "- Non-emergency knee surgery requires ≥24 months of coverage")
			So(gen.CallsNamed("claim_decision")[0].Temperature, ShouldEqual, 0.1)
			So(gen.CallsNamed("claim_decision")[0].JSON, ShouldBeTrue)
		})

		Convey("Supplied patient details skip parsing and get defaults", func() {
			gen.Respond("claim_decision", `{"decision":"REJECTED","amount":null,"justification":"Waiting period.","risk_factors":[],"coverage_status":"none"}`)
			d := e.Decide(ctx, query, &model.PatientDetails{Age: "46", Procedure: "knee surgery"})

			So(parser.calls, ShouldEqual, 0)
			So(d.Decision, ShouldEqual, model.DecisionRejected)
			So(d.Amount, ShouldBeNil)
			So(d.PatientDetails.Gender, ShouldEqual, model.UnknownValue)
			So(d.PatientDetails.PolicyDuration, ShouldEqual, model.UnknownValue)
		})

		Convey("Answers without JSON use the fallback verdict", func() {
			gen.Respond("claim_decision", "I am unable to decide.")
			d := e.Decide(ctx, "dental claim", nil)

			So(d.Decision, ShouldEqual, model.DecisionRejected)
			So(d.Justification, ShouldEqual, "Unable to process claim - insufficient policy information")
			So(d.RiskFactors[0], ShouldEqual, "Processing error")
			So(d.CoverageStatus, ShouldEqual, model.CoverageNone)
			So(d.Error, ShouldBeEmpty)
			So(d.Query, ShouldEqual, "dental claim")
		})

		Convey("Unknown decision strings use the fallback verdict", func() {
			gen.Respond("claim_decision", `{"decision":"PENDING","amount":1000}`)
			d := e.Decide(ctx, "dental claim", nil)
			So(d.Decision, ShouldEqual, model.DecisionRejected)
			So(d.Amount, ShouldBeNil)
			So(d.Justification, ShouldStartWith, "Unable to process claim")
		})

		Convey("Amounts beyond int64 are dropped", func() {
			gen.Respond("claim_decision", `{"decision":"APPROVED","amount":1e30,"justification":"ok","risk_factors":[],"coverage_status":"Full"}`)
			d := e.Decide(ctx, query, nil)
			So(d.Decision, ShouldEqual, model.DecisionApproved)
			So(d.Amount, ShouldBeNil)

			gen.Respond("claim_decision", `{"decision":"APPROVED","amount":"₹99,99,99,99,99,99,99,99,99,999","justification":"ok","risk_factors":[],"coverage_status":"Full"}`)
			d = e.Decide(ctx, query, nil)
			So(d.Amount, ShouldBeNil)
		})

		Convey("Generator failures become system errors", func() {
			gen.Fail("claim_decision", errors.New("quota exceeded"))
			d := e.Decide(ctx, query, nil)

			So(d.Decision, ShouldEqual, model.DecisionRejected)
			So(d.Justification, ShouldStartWith, "System error: ")
			So(d.Justification, ShouldContainSubstring, "quota exceeded")
			So(d.RiskFactors, ShouldResemble, []string{"System error"})
			So(d.CoverageStatus, ShouldEqual, model.CoverageNone)
			So(d.Error, ShouldContainSubstring, "quota exceeded")
			So(d.PatientDetails, ShouldNotBeNil)
		})

		Convey("Retrieval failures become system errors", func() {
			retriever.err = errors.New("store closed")
			d := e.Decide(ctx, query, nil)
			So(d.Error, ShouldContainSubstring, "store closed")
			So(gen.CallsNamed("claim_decision"), ShouldBeEmpty)
		})

		Convey("Invalid JSON becomes a system error", func() {
			gen.Respond("claim_decision", `{"decision": APPROVED}`)
			d := e.Decide(ctx, query, nil)
			So(d.Error, ShouldNotBeEmpty)
			So(d.Justification, ShouldStartWith, "System error: ")
		})
	})
}

func TestDecideWithClauses(t *testing.T) {
	Convey("Given supplied clauses", t, func() {
		e, gen, _, _ := setup(t)
		gen.Respond("claim_decision", approved)

		d := e.DecideWithClauses(context.Background(), "emergency knee surgery after accident", nil, kneeClauses[:1])

		Convey("The clause mapping lists the clauses used", func() {
			So(d.ClausesCount, ShouldEqual, 1)
			So(d.ClauseMapping, ShouldResemble, []model.ClauseMatch{
				{Clause: kneeClauses[0].Content, Source: "policy.pdf", Score: 0.91},
			})
		})
	})
}

func TestBatch(t *testing.T) {
	Convey("Given several queries", t, func() {
		e, gen, _, _ := setup(t)
		gen.Handler = func(req llm.Request) (string, error) {
			if strings.Contains(req.Messages[0].Text, "Procedure: knee surgery") {
				return `{"decision":"REJECTED","justification":"waiting period","coverage_status":"none"}`, nil
			}
			return "", errors.New("unexpected prompt")
		}

		queries := make([]string, 5)
		for i := range queries {
			queries[i] = fmt.Sprintf("claim %d", i)
		}
		out := e.Batch(context.Background(), queries)

		Convey("Decisions come back in input order", func() {
			So(out, ShouldHaveLength, 5)
			for i, d := range out {
				So(d.Query, ShouldEqual, queries[i])
				So(d.Decision, ShouldEqual, model.DecisionRejected)
			}
		})
	})
}

func TestSummary(t *testing.T) {
	Convey("Given decisions", t, func() {
		e, _, _, _ := setup(t)
		amt := int64(50000)

		Convey("Approved summaries format the amount with separators", func() {
			s := e.Summary(model.Decision{Decision: model.DecisionApproved, Amount: &amt, Justification: "Covered under 3.1"})
			So(s, ShouldEqual, "✅ CLAIM APPROVED - Amount: ₹50,000 | Covered under 3.1")
		})

		Convey("Approved summaries without an amount read N/A", func() {
			s := e.Summary(model.Decision{Decision: model.DecisionApproved, Justification: "Covered"})
			So(s, ShouldEqual, "✅ CLAIM APPROVED - Amount: N/A | Covered")
		})

		Convey("Rejected summaries carry the justification", func() {
			s := e.Summary(model.FallbackDecision())
			So(s, ShouldEqual, "❌ CLAIM REJECTED - Unable to process claim - insufficient policy information")
		})
	})
}
