package capability

import (
	"errors"
	"testing"
)

func TestCUEValidator(t *testing.T) {
	v := NewCUEValidator()
	tests := []struct {
		schema string
		value  any
		ok     bool
	}{
		{"{status: int}", map[string]any{"status": 200}, true},
		{"{status: int}", map[string]any{"status": "200"}, false},
		{"{status: int}", map[string]any{}, false},
		{"{status: int, ...}", map[string]any{"status": 1, "body": "x"}, true},
		{"close({status: int})", map[string]any{"status": 1, "body": "x"}, false},
		{"int & >0", int64(3), true},
		{"int & >0", int64(-3), false},
		{"[...string]", []any{"a", "b"}, true},
		{"[...string]", []any{"a", 1}, false},
		{"string", "x", true},
		{"null | string", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.schema, func(t *testing.T) {
			err := v.Validate(tt.schema, tt.value)
			if tt.ok && err != nil {
				t.Errorf("Validate(%v): %v", tt.value, err)
			}
			if !tt.ok && !errors.Is(err, ErrSchema) {
				t.Errorf("Validate(%v) = %v, want ErrSchema", tt.value, err)
			}
		})
	}
}

func TestCUEValidatorBadSchema(t *testing.T) {
	v := NewCUEValidator()
	if err := v.Check("{status: }"); err == nil {
		t.Error("syntax error not reported")
	}
	if err := v.Validate("{status: }", 1); err == nil {
		t.Error("Validate accepted a broken schema")
	}
}

func TestCUEValidatorCachesSchemas(t *testing.T) {
	v := NewCUEValidator()
	for i := 0; i < 3; i++ {
		if err := v.Validate("{n: int}", map[string]any{"n": i}); err != nil {
			t.Fatal(err)
		}
	}
	if len(v.schemas) != 1 {
		t.Errorf("cached %d schemas, want 1", len(v.schemas))
	}
}
