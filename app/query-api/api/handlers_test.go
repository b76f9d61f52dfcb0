package api

import "testing"

func TestCacheKey_OrderIndependent(t *testing.T) {
	a := cacheKey([]string{"44", "33"})
	b := cacheKey([]string{"33", "44"})
	if a != b {
		t.Fatalf("expected order-independent keys, got %q and %q", a, b)
	}
	if a != "33,44" {
		t.Fatalf("expected sorted joined key, got %q", a)
	}
}

func TestCacheKey_DoesNotMutateInput(t *testing.T) {
	routes := []string{"9", "1"}
	_ = cacheKey(routes)
	if routes[0] != "9" || routes[1] != "1" {
		t.Fatal("expected cacheKey not to mutate its input slice")
	}
}
