package generation

import "testing"

func TestExtractJSON_Direct(t *testing.T) {
	var v map[string]any
	if err := extractJSON(`{"a": 1}`, &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v["a"].(float64) != 1 {
		t.Fatalf("got %v", v)
	}
}

func TestExtractJSON_Fenced(t *testing.T) {
	var v []int
	text := "Here you go:\n```json\n[1, 2, 3]\n```\nDone."
	if err := extractJSON(text, &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != 3 {
		t.Fatalf("got %v", v)
	}
}

func TestExtractJSON_GreedySlice(t *testing.T) {
	var v map[string]any
	text := "Sure, the answer is {\"answer\": \"42\"} -- hope that helps!"
	if err := extractJSON(text, &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v["answer"] != "42" {
		t.Fatalf("got %v", v)
	}
}

func TestExtractJSON_TrailingCommaTolerant(t *testing.T) {
	var v []map[string]any
	text := `[{"id": "1",}, {"id": "2",},]`
	if err := extractJSON(text, &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != 2 {
		t.Fatalf("got %v", v)
	}
}

func TestExtractJSON_Unparseable(t *testing.T) {
	var v map[string]any
	if err := extractJSON("not json at all", &v); err == nil {
		t.Fatal("expected error")
	}
}
