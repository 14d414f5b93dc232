package support

import "testing"

func TestGetEnv(t *testing.T) {
	t.Setenv("TRAFFICWATCH_TEST_ENV", "value")
	if got := GetEnv("TRAFFICWATCH_TEST_ENV", "fallback"); got != "value" {
		t.Fatalf("GetEnv returned %s, want value", got)
	}

	if got := GetEnv("TRAFFICWATCH_TEST_ENV_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("GetEnv returned %s, want fallback", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TRAFFICWATCH_TEST_INT", "42")
	if got := GetEnvInt("TRAFFICWATCH_TEST_INT", 1); got != 42 {
		t.Fatalf("GetEnvInt returned %d, want 42", got)
	}

	t.Setenv("TRAFFICWATCH_TEST_INT_BAD", "forty-two")
	if got := GetEnvInt("TRAFFICWATCH_TEST_INT_BAD", 1); got != 1 {
		t.Fatalf("GetEnvInt with invalid value returned %d, want 1", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("TRAFFICWATCH_TEST_BOOL", " true ")
	if !GetEnvBool("TRAFFICWATCH_TEST_BOOL", false) {
		t.Fatal("GetEnvBool returned false, want true")
	}

	t.Setenv("TRAFFICWATCH_TEST_BOOL_BAD", "maybe")
	if GetEnvBool("TRAFFICWATCH_TEST_BOOL_BAD", false) {
		t.Fatal("GetEnvBool with invalid value returned true, want fallback false")
	}
}

func TestHashStringDeterministic(t *testing.T) {
	if got1, got2 := HashString("input"), HashString("input"); got1 != got2 {
		t.Fatal("HashString returned different values for the same input")
	}

	if HashString("input") == HashString("different") {
		t.Fatal("HashString returned same value for different inputs")
	}
}
