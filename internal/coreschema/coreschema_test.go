package coreschema

import "testing"

func TestSetContainsSevenOrderedScripts(t *testing.T) {
	set, err := Set()
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	keys := set.Keys()
	if len(keys) != 7 {
		t.Fatalf("expected 7 core scripts, got %d: %v", len(keys), keys)
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("scripts out of order: %s before %s", keys[i-1], keys[i])
		}
	}
	if keys[0] != "000001_create_users" {
		t.Fatalf("unexpected first script: %s", keys[0])
	}
}
