package host

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const battleJSON = `{
	"id": "battle-gen9ou-1",
	"gen": 9,
	"format": "gen9ou",
	"turn": 3,
	"sides": [
		{"id": "p1", "name": "alice", "pokemon": [
			{"ident": "p1: Garchomp", "searchid": "p1: Garchomp|Garchomp", "details": "Garchomp, L50, F", "hp": 100, "maxhp": 100,
			 "moveTrack": [{"name": "Earthquake", "pp": 1}, {"name": "*Tackle", "pp": 1}]}
		], "active": ["p1: Garchomp"]},
		{"id": "p2", "name": "bob", "pokemon": []}
	]
}`

func TestParseDetails(t *testing.T) {
	cases := []struct {
		in    string
		forme string
		level int
	}{
		{"Garchomp, L50, F", "Garchomp", 50},
		{"Charizard-Mega-X, M", "Charizard-Mega-X", 100},
		{"Mew", "Mew", 100},
		{"Ditto, Lx", "Ditto", 100},
	}
	for _, tc := range cases {
		forme, level := ParseDetails(tc.in)
		if forme != tc.forme || level != tc.level {
			t.Errorf("ParseDetails(%q): expected %s/%d, got %s/%d", tc.in, tc.forme, tc.level, forme, level)
		}
	}
}

func TestIdent(t *testing.T) {
	if IdentSide("p2a: Great Tusk") != "p2" || IdentName("p2a: Great Tusk") != "Great Tusk" {
		t.Fatal("unexpected ident parsing")
	}
	if IdentSide("nonsense") != "" {
		t.Fatal("expected no side for a malformed ident")
	}
}

func TestMoveUseTransformed(t *testing.T) {
	name, ok := MoveUse{Name: "*Tackle"}.Transformed()
	if !ok || name != "Tackle" {
		t.Fatalf("expected transformed Tackle, got %q %v", name, ok)
	}
	if _, ok := (MoveUse{Name: "Tackle"}).Transformed(); ok {
		t.Fatal("did not expect a plain move to be transformed")
	}
}

func TestDecodeBattle(t *testing.T) {
	b, err := DecodeBattle([]byte(battleJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.FindSide("p1") == nil || b.FindSide("p3") != nil {
		t.Fatal("unexpected side lookup")
	}
	if b.Server() != nil {
		t.Fatal("expected no server roster for a spectator capture")
	}

	if _, err := DecodeBattle([]byte(`{"gen": 9}`)); err == nil {
		t.Fatal("expected an error for a capture without id")
	}
}

func TestClientGetBattle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/battles":
			w.Write([]byte(`["battle-gen9ou-1"]`))
		case "/battles/battle-gen9ou-1":
			w.Write([]byte(battleJSON))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := NewClient(server.URL + "/")
	c.SetToken("secret")
	ctx := context.Background()

	if !c.IsConnected(ctx) {
		t.Fatal("expected the client to be connected")
	}
	ids, err := c.ListBattles(ctx)
	if err != nil || len(ids) != 1 {
		t.Fatalf("unexpected list result %v %v", ids, err)
	}
	b, err := c.GetBattle(ctx, ids[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Turn != 3 || len(b.Sides) != 2 {
		t.Fatalf("unexpected battle %+v", b)
	}

	if _, err := c.GetBattle(ctx, "missing"); !errors.Is(err, ErrBattleNotFound) {
		t.Fatalf("expected ErrBattleNotFound, got %v", err)
	}
}

func TestClientUnavailable(t *testing.T) {
	c := NewClient("")
	if _, err := c.ListBattles(context.Background()); !errors.Is(err, ErrHostUnavailable) {
		t.Fatalf("expected ErrHostUnavailable, got %v", err)
	}
}

func TestFeedDeliversBattles(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub []interface{}
		if err := conn.ReadJSON(&sub); err == nil && len(sub) == 2 {
			name, _ := sub[1].(string)
			subscribed <- name
		}

		send := func(eventType string, data string) {
			env, _ := json.Marshal(map[string]interface{}{
				"eventType": eventType,
				"data":      json.RawMessage(data),
			})
			frame, _ := json.Marshal([]interface{}{EventTypeEvent, BattleEvent, json.RawMessage(env)})
			conn.WriteMessage(websocket.TextMessage, frame)
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`[8, "SomethingElse", {}]`))
		send("Update", battleJSON)
		send("Delete", `{"id": "battle-gen9ou-1"}`)

		// Hold the connection until the client goes away.
		conn.ReadMessage()
	}))
	defer server.Close()

	type event struct {
		id    string
		ended bool
	}
	events := make(chan event, 4)

	feed := NewFeed(zerolog.Nop())
	feed.SetBattleHandler(func(b *Battle, ended bool) {
		events <- event{b.ID, ended}
	})

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	if err := feed.Connect(context.Background(), url); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer feed.Disconnect()

	select {
	case name := <-subscribed:
		if name != BattleEvent {
			t.Fatalf("expected subscription to %s, got %s", BattleEvent, name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription")
	}

	want := []event{{"battle-gen9ou-1", false}, {"battle-gen9ou-1", true}}
	for _, w := range want {
		select {
		case got := <-events:
			if got != w {
				t.Fatalf("expected %+v, got %+v", w, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	if !feed.IsConnected() {
		t.Fatal("expected the feed to be connected")
	}
}

func TestFeedIgnoresUnreadableDeletes(t *testing.T) {
	var got []string
	var buf bytes.Buffer
	feed := NewFeed(zerolog.New(&buf))
	feed.SetBattleHandler(func(b *Battle, ended bool) {
		got = append(got, b.ID)
	})

	frame := func(data string) []byte {
		env, _ := json.Marshal(map[string]interface{}{
			"eventType": "Delete",
			"data":      json.RawMessage(data),
		})
		out, _ := json.Marshal([]interface{}{EventTypeEvent, BattleEvent, json.RawMessage(env)})
		return out
	}

	feed.handleMessage(frame(`{"id": 42}`))
	feed.handleMessage(frame(`{}`))
	feed.handleMessage(frame(`"battle-gen9ou-1"`))
	if len(got) != 0 {
		t.Fatalf("expected unreadable deletes to be dropped, got %v", got)
	}
	if n := strings.Count(buf.String(), `"component":"feed"`); n != 3 {
		t.Fatalf("expected three warnings tagged with the feed component, got %d:\n%s", n, buf.String())
	}

	feed.handleMessage(frame(`{"id": "battle-gen9ou-1"}`))
	if len(got) != 1 || got[0] != "battle-gen9ou-1" {
		t.Fatalf("expected the delete to reach the handler, got %v", got)
	}
}
