package env

import "testing"

func TestGet(t *testing.T) {
	t.Setenv("ENVTEST_STRING", "set")

	if got := Get("ENVTEST_STRING", "fallback"); got != "set" {
		t.Fatalf("expected env value, got %q", got)
	}
	if got := Get("ENVTEST_STRING_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestGetBool(t *testing.T) {
	t.Setenv("ENVTEST_TRUE", "true")
	t.Setenv("ENVTEST_ONE", "1")
	t.Setenv("ENVTEST_GARBAGE", "not-a-bool")

	if !GetBool("ENVTEST_TRUE", false) {
		t.Fatal("expected true for \"true\"")
	}
	if !GetBool("ENVTEST_ONE", false) {
		t.Fatal("expected true for \"1\"")
	}
	if !GetBool("ENVTEST_GARBAGE", true) {
		t.Fatal("expected fallback for unparsable value")
	}
	if GetBool("ENVTEST_MISSING", false) {
		t.Fatal("expected fallback for unset variable")
	}
}
