package event

import (
	"reflect"
	"testing"
)

func TestParseChatShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ChatMessage
	}{
		{
			name: "normalized",
			raw:  `{"text":"hi","sender":{"uid":"u1","name":"Alice"}}`,
			want: ChatMessage{Text: "hi", Sender: Sender{UID: "u1", Name: "Alice"}},
		},
		{
			name: "string sender with senderName",
			raw:  `{"text":"yo","sender":"u2","senderName":"Bob"}`,
			want: ChatMessage{Text: "yo", Sender: Sender{UID: "u2", Name: "Bob"}},
		},
		{
			name: "socket message frame",
			raw:  `{"type":"message","body":{"sender":"u3","data":{"text":"hey","entities":{"sender":{"entity":{"uid":"u3","name":"Cy"}}}}}}`,
			want: ChatMessage{Text: "hey", Sender: Sender{UID: "u3", Name: "Cy"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseChat([]byte(tt.raw))
			if !ok {
				t.Fatal("expected a chat message")
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseChatWithoutText(t *testing.T) {
	if _, ok := ParseChat([]byte(`{"sender":{"uid":"u1"}}`)); ok {
		t.Fatal("expected no message when text is missing")
	}
	if _, ok := ParseChat([]byte(`{"text":{"nested":true}}`)); ok {
		t.Fatal("non-scalar text must be ignored")
	}
}

func TestPathsNumberAndOrder(t *testing.T) {
	raw := []byte(`{"song":{"artistName":""},"artist":"Fallback","id":42}`)
	if got := ArtistPaths.String(raw); got != "Fallback" {
		t.Errorf("expected empty candidate to be skipped, got %q", got)
	}
	if got := (Paths{"id"}).String(raw); got != "42" {
		t.Errorf("expected numeric raw value, got %q", got)
	}
}

func TestNamesArrayAndObject(t *testing.T) {
	arr := []byte(`{"djs":[{"userProfile":{"nickname":"A"}},{"name":"B"},"C"]}`)
	got, ok := Names(arr, "room.djs", "djs")
	if !ok || !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Fatalf("array: got %v %v", got, ok)
	}

	obj := []byte(`{"allUserData":{"x":{"userProfile":{"nickname":"Zed"}}}}`)
	got, ok = Names(obj, "allUserData")
	if !ok || !reflect.DeepEqual(got, []string{"Zed"}) {
		t.Fatalf("object: got %v %v", got, ok)
	}

	if _, ok := Names(obj, "missing"); ok {
		t.Fatal("expected not found")
	}
}

func TestInner(t *testing.T) {
	raw := []byte(`{"name":"playedSong","params":{"song":{"artistName":"X"}}}`)
	if got := string(Inner(raw, "payload", "params")); got != `{"song":{"artistName":"X"}}` {
		t.Fatalf("got %s", got)
	}
	if got := string(Inner(raw, "payload")); got != string(raw) {
		t.Fatalf("expected raw fallback, got %s", got)
	}
}
