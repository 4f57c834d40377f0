package speech

import "testing"

func TestCleanTranscript(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"  Check my balance. ", "Check my balance.", true},
		{"hello", "hello", true},
		{"", "", false},
		{" ... ", "", false},
		{"Subtitles.", "", false},
		{"Copyright 2021 all rights reserved!", "", false},
		{"Subtitles by the Amara.org community", "", false},
		{"Thanks for watching, viewers?", "", false},
	}
	for _, tc := range cases {
		got, ok := CleanTranscript(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("CleanTranscript(%q) = (%q,%v), want (%q,%v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
