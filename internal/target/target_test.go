package target

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		raw     string
		want    Target
		wantErr bool
	}{
		{"c2c:ABCD1234", Target{SurfaceDirect, "ABCD1234"}, false},
		{"group:G1", Target{SurfaceGroup, "G1"}, false},
		{"channel:12345", Target{SurfaceChannel, "12345"}, false},
		{"qq:c2c:ABCD1234", Target{SurfaceDirect, "ABCD1234"}, false},
		{"QQ:group:G1", Target{SurfaceGroup, "G1"}, false},
		{"C2C:lower", Target{SurfaceDirect, "lower"}, false},
		{"0123456789abcdef0123456789ABCDEF", Target{SurfaceDirect, "0123456789abcdef0123456789ABCDEF"}, false},
		{"  c2c:padded  ", Target{SurfaceDirect, "padded"}, false},

		// Permissive fallback: bare non-hex strings become direct targets.
		{"foo", Target{SurfaceDirect, "foo"}, false},
		{"xyz:abc", Target{SurfaceDirect, "xyz:abc"}, false},

		{"", Target{}, true},
		{"qq:", Target{}, true},
		{"c2c:", Target{}, true},
		{"group:", Target{}, true},
		{"channel:", Target{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := Parse(tc.raw)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Parse(%q) error = %v; wantErr %v", tc.raw, err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if got != tc.want {
				t.Errorf("Parse(%q) = %+v; want %+v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestLooksLikeIDAgreesWithParse(t *testing.T) {
	inputs := []string{
		"c2c:ABCD1234", "group:G1", "channel:12345", "qq:c2c:x",
		"0123456789abcdef0123456789abcdef", "foo", "", "c2c:", "qq:",
	}
	for _, raw := range inputs {
		_, err := Parse(raw)
		if got := LooksLikeID(raw); got != (err == nil) {
			t.Errorf("LooksLikeID(%q) = %v; Parse error = %v", raw, got, err)
		}
	}
}

func TestIsOpenID(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"0123456789abcdef0123456789abcdef", true},
		{"0123456789ABCDEF0123456789ABCDEF", true},
		{"0123456789abcdef0123456789abcde", false},  // 31 chars
		{"0123456789abcdef0123456789abcdeg", false}, // non-hex
		{"", false},
	}
	for _, tc := range tests {
		if got := IsOpenID(tc.s); got != tc.want {
			t.Errorf("IsOpenID(%q) = %v; want %v", tc.s, got, tc.want)
		}
	}
}
