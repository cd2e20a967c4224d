package memory

import (
	"context"
	"strings"
	"testing"
)

func TestBlobStorePutAndGet(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "20240305-briefs.txt", "text/plain", strings.NewReader("content"))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://20240305-briefs.txt" {
		t.Fatalf("unexpected uri %s", uri)
	}

	obj, ok := store.Get("20240305-briefs.txt")
	if !ok {
		t.Fatal("expected object to be stored")
	}
	if string(obj.Data) != "content" || obj.ContentType != "text/plain" {
		t.Fatalf("unexpected object %+v", obj)
	}
	obj.Data[0] = 'C'
	again, _ := store.Get("20240305-briefs.txt")
	if string(again.Data) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", again.Data)
	}
}

func TestBlobStorePaths(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, p := range []string{"b.json", "a.txt"} {
		if _, err := store.PutObject(context.Background(), p, "", strings.NewReader("")); err != nil {
			t.Fatalf("PutObject(%s) error = %v", p, err)
		}
	}
	if got := strings.Join(store.Paths(), ","); got != "a.txt,b.json" {
		t.Fatalf("unexpected paths %s", got)
	}
	if _, err := store.PutObject(context.Background(), "", "", strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty path")
	}
}
