package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/okian/queryai/internal/adapters/llm"
	"github.com/okian/queryai/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestExtractJSON(t *testing.T) {
	Convey("Given model output", t, func() {
		Convey("When the object is wrapped in prose and fences", func() {
			out, err := llm.ExtractJSON("Here you go:\n```json\n{\"decision\": \"APPROVED\", \"x\": {\"y\": 1}}\n```\nThanks")

			Convey("Then the outermost object should be returned", func() {
				So(err, ShouldBeNil)
				So(out, ShouldEqual, `{"decision": "APPROVED", "x": {"y": 1}}`)
			})
		})

		Convey("When there is no object", func() {
			_, err := llm.ExtractJSON("I cannot decide.")

			Convey("Then ErrNoJSON should be returned", func() {
				So(errors.Is(err, llm.ErrNoJSON), ShouldBeTrue)
			})
		})

		Convey("When braces are reversed", func() {
			_, err := llm.ExtractJSON("} nope {")
			So(errors.Is(err, llm.ErrNoJSON), ShouldBeTrue)
		})
	})

	Convey("Given a single turn prompt", t, func() {
		req := llm.Prompt("parser", "hello", 0.2)

		So(req.Name, ShouldEqual, "parser")
		So(req.Messages, ShouldResemble, []llm.Message{{Role: llm.RoleUser, Text: "hello"}})
		So(req.Temperature, ShouldEqual, 0.2)
		So(req.JSON, ShouldBeFalse)
		So(llm.JSONPrompt("parser", "hello", 0.2).JSON, ShouldBeTrue)
	})
}

type geminiFake struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]any
	reply  string
	status int
}

func (f *geminiFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()

	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"boom","status":"INTERNAL"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": f.reply}}},
		}},
		"usageMetadata": map[string]any{"promptTokenCount": 12, "candidatesTokenCount": 4, "totalTokenCount": 16},
	})
}

func TestGemini(t *testing.T) {
	_ = logger.Init()
	ctx := context.Background()

	Convey("Given a Gemini generator pointed at a fake API", t, func() {
		fake := &geminiFake{reply: "  Knee surgery is covered after 24 months.  "}
		srv := httptest.NewServer(fake)
		defer srv.Close()

		g, err := llm.NewGemini(ctx, "test-key", llm.WithBaseURL(srv.URL), llm.WithModel("gemini-test"))
		So(err, ShouldBeNil)
		So(g.Model(), ShouldEqual, "gemini-test")

		Convey("When generating with a system prompt and history", func() {
			resp, err := g.Generate(ctx, llm.Request{
				Name:        "chat",
				System:      "You are an insurance assistant.",
				Messages:    []llm.Message{{Role: llm.RoleUser, Text: "hi"}, {Role: llm.RoleModel, Text: "hello"}, {Role: llm.RoleUser, Text: "is knee surgery covered?"}},
				Temperature: 0.7,
			})

			Convey("Then the trimmed text and usage should be returned", func() {
				So(err, ShouldBeNil)
				So(resp.Text, ShouldEqual, "Knee surgery is covered after 24 months.")
				So(resp.PromptTokens, ShouldEqual, 12)
				So(resp.CompletionTokens, ShouldEqual, 4)
			})

			Convey("And the request should target the model", func() {
				So(fake.paths[0], ShouldEndWith, "models/gemini-test:generateContent")
				contents, _ := fake.bodies[0]["contents"].([]any)
				So(contents, ShouldHaveLength, 3)
				So(fake.bodies[0]["systemInstruction"], ShouldNotBeNil)
			})
		})

		Convey("When a JSON answer is requested", func() {
			_, err := g.Generate(ctx, llm.JSONPrompt("claim_decision", "decide", 0.1))

			Convey("Then the response mime type should be set", func() {
				So(err, ShouldBeNil)
				genCfg, _ := fake.bodies[0]["generationConfig"].(map[string]any)
				So(genCfg["responseMimeType"], ShouldEqual, "application/json")
			})
		})

		Convey("When the API fails", func() {
			fake.status = http.StatusInternalServerError
			_, err := g.Generate(ctx, llm.Prompt("parser", "x", 0.2))

			Convey("Then the error should be returned", func() {
				So(err, ShouldNotBeNil)
				So(strings.Contains(err.Error(), "gemini generate"), ShouldBeTrue)
			})
		})

		Convey("When the model answers with blanks", func() {
			fake.reply = "   "
			_, err := g.Generate(ctx, llm.Prompt("parser", "x", 0.2))

			Convey("Then ErrEmptyResponse should be returned", func() {
				So(errors.Is(err, llm.ErrEmptyResponse), ShouldBeTrue)
			})
		})
	})

	Convey("Given no API key", t, func() {
		_, err := llm.NewGemini(ctx, "")

		So(errors.Is(err, llm.ErrMissingAPIKey), ShouldBeTrue)
	})
}
