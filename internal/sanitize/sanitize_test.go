package sanitize

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Abbey   Road\n", "Abbey Road"},
		{"<b>Blue</b> Train", "Blue Train"},
		{"Simon &amp; Garfunkel", "Simon & Garfunkel"},
		{"<script>alert(1)</script>Kind of Blue", "Kind of Blue"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Text(tt.in); got != tt.want {
			t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
