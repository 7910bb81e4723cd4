package profile

import "testing"

func TestEscape(t *testing.T) {
	tests := []struct {
		in   string
		key  bool
		want string
	}{
		{"service.port", true, "service.port"},
		{"a b", true, `a\ b`},
		{"a b", false, "a b"},
		{" a", false, `\ a`},
		{"x=y:z", false, `x\=y\:z`},
		{"#!", false, `\#\!`},
		{"c:\\tmp", false, `c\:\\tmp`},
		{"l1\nl2\r\t\f", false, `l1\nl2\r\t\f`},
		{"é", false, `\u00E9`},
		{"😀", false, `\uD83D\uDE00`},
		{"\x01", false, `\u0001`},
	}
	for _, tt := range tests {
		if got := escape(tt.in, tt.key); got != tt.want {
			t.Errorf("escape(%q, %v) = %q, want %q", tt.in, tt.key, got, tt.want)
		}
	}
}
