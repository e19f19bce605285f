package ddl

import (
	"testing"

	"staretl/internal/schema"
)

func TestMapType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		col  schema.Column
		want string
	}{
		{schema.Column{Type: schema.TypeInteger}, "INTEGER"},
		{schema.Column{Type: schema.TypeNumeric, Precision: 5, Scale: 2}, "NUMERIC"},
		{schema.Column{Type: schema.TypeDate}, "DATE"},
		{schema.Column{Type: schema.TypeTimestamp}, "TIMESTAMP"},
		{schema.Column{Type: schema.TypeBoolean}, "BOOLEAN"},
		{schema.Column{Type: schema.TypeText, Size: 64}, "TEXT"},
	}
	for _, tt := range tests {
		if got := MapType(tt.col); got != tt.want {
			t.Errorf("MapType(%+v) = %q, want %q", tt.col, got, tt.want)
		}
	}
}
