package ddl

import (
	"testing"

	"staretl/internal/schema"
)

func TestMapType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		col  schema.Column
		want string
	}{
		{"integer", schema.Column{Type: schema.TypeInteger}, "INT"},
		{"numeric", schema.Column{Type: schema.TypeNumeric, Precision: 15, Scale: 2}, "DECIMAL(15,2)"},
		{"numeric bare", schema.Column{Type: schema.TypeNumeric}, "DECIMAL(38,10)"},
		{"date", schema.Column{Type: schema.TypeDate}, "DATE"},
		{"timestamp", schema.Column{Type: schema.TypeTimestamp}, "DATETIME2"},
		{"boolean", schema.Column{Type: schema.TypeBoolean}, "BIT"},
		{"text", schema.Column{Type: schema.TypeText}, "NVARCHAR(MAX)"},
		{"key text", schema.Column{Type: schema.TypeText, Size: 64}, "NVARCHAR(64)"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := MapType(tt.col); got != tt.want {
				t.Fatalf("MapType() = %q, want %q", got, tt.want)
			}
		})
	}
}
