package chatstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/queryai/internal/adapters/chatstore"
	model "github.com/okian/queryai/internal/domain/model"
)

func msg(role, content string) model.ChatMessage {
	return model.ChatMessage{Role: role, Content: content, Timestamp: time.Unix(1700000000, 0).UTC()}
}

func storeContract(t *testing.T, name string, newStore func(window int) chatstore.Store) {
	ctx := context.Background()

	Convey("Given a "+name+" chat store with a window of 4", t, func() {
		s := newStore(4)
		Reset(func() { _ = s.Close() })

		Convey("History of an unknown user is empty", func() {
			h, err := s.History(ctx, "nobody")
			So(err, ShouldBeNil)
			So(h, ShouldBeEmpty)
		})

		Convey("Appended messages come back in order", func() {
			So(s.Append(ctx, "alice", msg(model.RoleUser, "hi"), msg(model.RoleAssistant, "hello")), ShouldBeNil)
			h, err := s.History(ctx, "alice")
			So(err, ShouldBeNil)
			So(h, ShouldHaveLength, 2)
			So(h[0].Role, ShouldEqual, model.RoleUser)
			So(h[0].Content, ShouldEqual, "hi")
			So(h[1].Content, ShouldEqual, "hello")
		})

		Convey("Only the newest window of messages is kept", func() {
			for i := 0; i < 6; i++ {
				So(s.Append(ctx, "bob", msg(model.RoleUser, fmt.Sprintf("m%d", i))), ShouldBeNil)
			}
			h, err := s.History(ctx, "bob")
			So(err, ShouldBeNil)
			So(h, ShouldHaveLength, 4)
			So(h[0].Content, ShouldEqual, "m2")
			So(h[3].Content, ShouldEqual, "m5")
		})

		Convey("Users are listed sorted and clearing reports existence", func() {
			So(s.Append(ctx, "zed", msg(model.RoleUser, "a")), ShouldBeNil)
			So(s.Append(ctx, "amy", msg(model.RoleUser, "b")), ShouldBeNil)

			users, err := s.Users(ctx)
			So(err, ShouldBeNil)
			So(users, ShouldResemble, []string{"amy", "zed"})

			cleared, err := s.Clear(ctx, "zed")
			So(err, ShouldBeNil)
			So(cleared, ShouldBeTrue)

			cleared, err = s.Clear(ctx, "zed")
			So(err, ShouldBeNil)
			So(cleared, ShouldBeFalse)

			users, err = s.Users(ctx)
			So(err, ShouldBeNil)
			So(users, ShouldResemble, []string{"amy"})
		})

		Convey("An empty user id is rejected", func() {
			So(s.Append(ctx, "", msg(model.RoleUser, "x")), ShouldEqual, chatstore.ErrEmptyUserID)
		})
	})

	Convey("Given a "+name+" chat store with an odd window of 5", t, func() {
		s := newStore(5)
		Reset(func() { _ = s.Close() })

		Convey("Trimmed history starts on a user turn", func() {
			for i := 0; i < 3; i++ {
				So(s.Append(ctx, "carol",
					msg(model.RoleUser, fmt.Sprintf("q%d", i)),
					msg(model.RoleAssistant, fmt.Sprintf("a%d", i)),
				), ShouldBeNil)
			}
			h, err := s.History(ctx, "carol")
			So(err, ShouldBeNil)
			So(h, ShouldHaveLength, 4)
			So(h[0].Role, ShouldEqual, model.RoleUser)
			So(h[0].Content, ShouldEqual, "q1")
			So(h[3].Content, ShouldEqual, "a2")
		})
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, "memory", func(window int) chatstore.Store {
		return chatstore.NewMemory(chatstore.WithWindow(window))
	})
}

func TestRedisStore(t *testing.T) {
	storeContract(t, "redis", func(window int) chatstore.Store {
		mr := miniredis.RunT(t)
		s, err := chatstore.NewRedis(context.Background(), chatstore.RedisConfig{Addr: mr.Addr()}, chatstore.WithWindow(window))
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		return s
	})
}

func TestRedisStoreTTL(t *testing.T) {
	ctx := context.Background()

	Convey("Given a redis chat store with a TTL", t, func() {
		mr := miniredis.RunT(t)
		s, err := chatstore.NewRedis(ctx, chatstore.RedisConfig{Addr: mr.Addr(), TTL: time.Minute})
		So(err, ShouldBeNil)
		Reset(func() { _ = s.Close() })

		So(s.Append(ctx, "carol", msg(model.RoleUser, "hi")), ShouldBeNil)
		So(mr.TTL("queryai:chat:user:carol"), ShouldEqual, time.Minute)

		Convey("Expired conversations drop out of the user list", func() {
			mr.FastForward(2 * time.Minute)
			users, err := s.Users(ctx)
			So(err, ShouldBeNil)
			So(users, ShouldBeEmpty)

			h, err := s.History(ctx, "carol")
			So(err, ShouldBeNil)
			So(h, ShouldBeEmpty)
		})
	})
}

func TestRedisConnect(t *testing.T) {
	Convey("Connecting without an address fails", t, func() {
		_, err := chatstore.NewRedis(context.Background(), chatstore.RedisConfig{})
		So(err, ShouldEqual, chatstore.ErrEmptyAddr)
	})

	Convey("Memory store rejects use after close", t, func() {
		s := chatstore.NewMemory()
		So(s.Close(), ShouldBeNil)
		_, err := s.History(context.Background(), "x")
		So(err, ShouldEqual, chatstore.ErrClosed)
	})
}
