package main

import "testing"

func TestParseID(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"12", 12, false},
		{"1", 1, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tc := range cases {
		got, err := parseID(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseID(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseID(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseID(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
