package filter

import "testing"

func TestFromMap_Empty(t *testing.T) {
	expr, err := FromMap(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !expr.IsEmpty() {
		t.Error("expected empty expression")
	}
	if !expr.Matches(map[string]any{"a": 1}) {
		t.Error("empty expression must match everything")
	}
}

func TestFromMap_Kinds(t *testing.T) {
	expr, err := FromMap(map[string]any{
		"source":     "notes",
		"chunkIndex": 2,
		"pinned":     true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conds := expr.Must()
	if len(conds) != 3 {
		t.Fatalf("expected 3 conditions, got %d", len(conds))
	}
	// sorted by key
	if conds[0].Key() != "chunkIndex" || conds[1].Key() != "pinned" || conds[2].Key() != "source" {
		t.Errorf("unexpected order: %s %s %s", conds[0].Key(), conds[1].Key(), conds[2].Key())
	}
	if conds[0].Kind() != KindNumber || conds[0].Text() != "2" {
		t.Errorf("chunkIndex: kind=%v text=%q", conds[0].Kind(), conds[0].Text())
	}
	if conds[1].Kind() != KindBool || conds[1].Text() != "true" {
		t.Errorf("pinned: kind=%v text=%q", conds[1].Kind(), conds[1].Text())
	}
	if conds[2].Kind() != KindTag || conds[2].Text() != "notes" {
		t.Errorf("source: kind=%v text=%q", conds[2].Kind(), conds[2].Text())
	}
}

func TestFromMap_RejectsNested(t *testing.T) {
	if _, err := FromMap(map[string]any{"tags": []any{"a"}}); err == nil {
		t.Error("expected error for array value")
	}
	if _, err := FromMap(map[string]any{"m": map[string]any{}}); err == nil {
		t.Error("expected error for object value")
	}
}

func TestFromMap_TooMany(t *testing.T) {
	m := make(map[string]any, MaxConditions+1)
	for i := 0; i <= MaxConditions; i++ {
		m[string(rune('a'+i%26))+string(rune('a'+i/26))] = "x"
	}
	if _, err := FromMap(m); err == nil {
		t.Error("expected error for too many conditions")
	}
}

func TestExpression_Matches(t *testing.T) {
	expr, err := FromMap(map[string]any{"documentId": "doc1", "chunkIndex": 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name string
		meta map[string]any
		want bool
	}{
		{"exact", map[string]any{"documentId": "doc1", "chunkIndex": 0}, true},
		{"json number", map[string]any{"documentId": "doc1", "chunkIndex": float64(0)}, true},
		{"int64", map[string]any{"documentId": "doc1", "chunkIndex": int64(0)}, true},
		{"extra keys", map[string]any{"documentId": "doc1", "chunkIndex": 0, "x": "y"}, true},
		{"wrong value", map[string]any{"documentId": "doc2", "chunkIndex": 0}, false},
		{"missing key", map[string]any{"documentId": "doc1"}, false},
		{"type mismatch", map[string]any{"documentId": "doc1", "chunkIndex": "0"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := expr.Matches(tc.meta); got != tc.want {
				t.Errorf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExpression_Split(t *testing.T) {
	expr, err := FromMap(map[string]any{"documentId": "d", "lang": "en", "chunkIndex": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in, out := expr.Split(func(c Condition) bool { return c.Key() != "lang" })
	if len(in.Must()) != 2 || len(out.Must()) != 1 {
		t.Fatalf("split sizes in=%d out=%d", len(in.Must()), len(out.Must()))
	}
	if out.Must()[0].Key() != "lang" {
		t.Errorf("unexpected residual key %q", out.Must()[0].Key())
	}
}

func TestExpression_MapAsTag(t *testing.T) {
	expr, err := FromMap(map[string]any{"draft": true, "page": 3, "source": "notes"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mapped := expr.Map(func(c Condition) Condition {
		if c.Kind() == KindNumber {
			return c
		}
		return c.AsTag("enc:" + c.Text())
	})

	got := mapped.Must()
	if len(got) != 3 {
		t.Fatalf("expected 3 conditions, got %d", len(got))
	}
	if got[0].Key() != "draft" || got[0].Kind() != KindTag || got[0].Text() != "enc:true" {
		t.Errorf("bool condition = %+v", got[0])
	}
	if got[1].Kind() != KindNumber || got[1].Number() != 3 {
		t.Errorf("number condition must be kept, got %+v", got[1])
	}
	if got[2].Text() != "enc:notes" {
		t.Errorf("tag condition = %q", got[2].Text())
	}
	if expr.Must()[2].Text() != "notes" {
		t.Error("original expression must not change")
	}
}
