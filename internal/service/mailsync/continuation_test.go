package mailsync

import "testing"

func TestTrackerRoundTrip(t *testing.T) {
	tr := NewTracker()
	key := Key{Connection: "c1", Folder: "inbox"}

	if _, ok := tr.Get(key); ok {
		t.Fatal("fresh tracker must hold no token")
	}

	tr.Set(key, "cursor-1")
	token, ok := tr.Get(key)
	if !ok || token != "cursor-1" {
		t.Fatalf("Get = %q, %v; want cursor-1", token, ok)
	}

	tr.Clear(key)
	if _, ok := tr.Get(key); ok {
		t.Error("token must be gone after Clear")
	}
}

func TestTrackerScopedPerConnectionAndFolder(t *testing.T) {
	tr := NewTracker()
	tr.Set(Key{Connection: "c1", Folder: "inbox"}, "a")
	tr.Set(Key{Connection: "c2", Folder: "inbox"}, "b")
	tr.Set(Key{Connection: "c1", Folder: "archive"}, "c")

	if token, _ := tr.Get(Key{Connection: "c1", Folder: "inbox"}); token != "a" {
		t.Errorf("c1/inbox = %q, want a", token)
	}
	if token, _ := tr.Get(Key{Connection: "c2", Folder: "inbox"}); token != "b" {
		t.Errorf("c2/inbox = %q, want b", token)
	}

	tr.Clear(Key{Connection: "c1", Folder: "inbox"})
	if _, ok := tr.Get(Key{Connection: "c2", Folder: "inbox"}); !ok {
		t.Error("clearing one connection's cursor must not touch another's")
	}
}
