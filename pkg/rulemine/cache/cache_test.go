package cache

import (
	"bytes"
	"testing"
	"time"
)

func TestLRUPutGet(t *testing.T) {
	c := NewLRU(8, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("empty cache should miss")
	}

	c.Put("fp1", []byte("payload"))
	got, ok := c.Get("fp1")
	if !ok || !bytes.Equal(got, []byte("payload")) {
		t.Errorf("Get = %q, %v", got, ok)
	}

	c.Put("fp1", []byte("newer"))
	got, _ = c.Get("fp1")
	if !bytes.Equal(got, []byte("newer")) {
		t.Error("Put should overwrite, last writer wins")
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRU(2, time.Minute)
	c.Put("a", []byte("1"))
	c.Put("b", []byte("2"))
	c.Put("c", []byte("3"))

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should be evicted at capacity")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("newest entry should survive")
	}
}

func TestLRUDefaultSize(t *testing.T) {
	c := NewLRU(0, time.Minute)
	c.Put("x", []byte("1"))
	if _, ok := c.Get("x"); !ok {
		t.Error("zero size should fall back to a usable default")
	}
}

func TestNoop(t *testing.T) {
	var c Noop
	c.Put("fp", []byte("data"))
	if _, ok := c.Get("fp"); ok {
		t.Error("noop cache should never hit")
	}
}
