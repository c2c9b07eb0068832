package chat_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/queryai/internal/adapters/chatstore"
	"github.com/okian/queryai/internal/adapters/llm"
	"github.com/okian/queryai/internal/adapters/llm/llmtest"
	"github.com/okian/queryai/internal/domain/chat"
	model "github.com/okian/queryai/internal/domain/model"
	"github.com/okian/queryai/pkg/logger"
)

type stubRetriever struct {
	hits []model.ScoredChunk
	err  error
}

func (s stubRetriever) RetrieveClauses(ctx context.Context, query string) ([]model.ScoredChunk, error) {
	return s.hits, s.err
}

var fixed = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func newBot(t *testing.T, gen llm.Generator, window int, opts ...chat.Option) *chat.Bot {
	t.Helper()
	if err := logger.Init(); err != nil {
		t.Fatalf("logger init: %v", err)
	}
	opts = append(opts, chat.WithClock(func() time.Time { return fixed }))
	return chat.New(gen, chatstore.NewMemory(chatstore.WithWindow(window)), opts...)
}

func TestRespond(t *testing.T) {
	ctx := context.Background()

	Convey("Given a bot with a window of four messages", t, func() {
		gen := llmtest.New()
		gen.Default = "Maternity is covered after 9 months."
		bot := newBot(t, gen, 4, chat.WithTemperature(0.5))

		Convey("A reply is stored with the question", func() {
			reply, err := bot.Respond(ctx, "alice", "Is maternity covered?")
			So(err, ShouldBeNil)
			So(reply, ShouldEqual, gen.Default)

			h, err := bot.History(ctx, "alice")
			So(err, ShouldBeNil)
			So(h, ShouldResemble, []model.ChatMessage{
				{Role: model.RoleUser, Content: "Is maternity covered?", Timestamp: fixed},
				{Role: model.RoleAssistant, Content: gen.Default, Timestamp: fixed},
			})

			call := gen.CallsNamed("chat")[0]
			So(call.Temperature, ShouldEqual, 0.5)
			So(call.System, ShouldContainSubstring, "Query.AI")
		})

		Convey("Previous turns are sent with model roles", func() {
			_, _ = bot.Respond(ctx, "alice", "first")
			_, _ = bot.Respond(ctx, "alice", "second")
			call := gen.CallsNamed("chat")[1]
			So(call.Messages, ShouldResemble, []llm.Message{
				{Role: llm.RoleUser, Text: "first"},
				{Role: llm.RoleModel, Text: gen.Default},
				{Role: llm.RoleUser, Text: "second"},
			})
		})

		Convey("Memory is trimmed to the window", func() {
			for i := 0; i < 5; i++ {
				_, err := bot.Respond(ctx, "bob", fmt.Sprintf("q%d", i))
				So(err, ShouldBeNil)
			}
			h, _ := bot.History(ctx, "bob")
			So(h, ShouldHaveLength, 4)
			So(h[0].Content, ShouldEqual, "q3")
		})

		Convey("An empty user id maps to the default user", func() {
			_, err := bot.Respond(ctx, "", "hello")
			So(err, ShouldBeNil)
			users, err := bot.Users(ctx)
			So(err, ShouldBeNil)
			So(users, ShouldResemble, []string{chat.DefaultUser})
		})

		Convey("Generator failures are returned and nothing is stored", func() {
			gen.Fail("chat", errors.New("model overloaded"))
			_, err := bot.Respond(ctx, "carol", "hi")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "model overloaded")
			h, _ := bot.History(ctx, "carol")
			So(h, ShouldBeEmpty)
		})

		Convey("Blank messages are rejected", func() {
			_, err := bot.Respond(ctx, "carol", "  ")
			So(err, ShouldEqual, chat.ErrEmptyMessage)
		})

		Convey("Clear reports whether history existed", func() {
			_, _ = bot.Respond(ctx, "dave", "hi")
			ok, err := bot.Clear(ctx, "dave")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			ok, err = bot.Clear(ctx, "dave")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})
	})
}

func TestGrounding(t *testing.T) {
	ctx := context.Background()

	Convey("Given a bot with a retriever", t, func() {
		gen := llmtest.New()
		gen.Default = "ok"

		Convey("Retrieved clauses are added to the system prompt", func() {
			r := stubRetriever{hits: []model.ScoredChunk{{Chunk: model.Chunk{Content: "Maternity after 9 months."}, Score: 0.9}}}
			bot := newBot(t, gen, 10, chat.WithRetriever(r))
			_, err := bot.Respond(ctx, "u", "maternity?")
			So(err, ShouldBeNil)
			So(gen.CallsNamed("chat")[0].System, ShouldContainSubstring, "- Maternity after 9 months.")
		})

		Convey("Retrieval failures do not fail the reply", func() {
			bot := newBot(t, gen, 10, chat.WithRetriever(stubRetriever{err: errors.New("down")}))
			reply, err := bot.Respond(ctx, "u", "maternity?")
			So(err, ShouldBeNil)
			So(reply, ShouldEqual, "ok")
			So(gen.CallsNamed("chat")[0].System, ShouldNotContainSubstring, "Policy excerpts")
		})
	})
}
