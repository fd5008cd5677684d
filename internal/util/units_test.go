package util

import "testing"

func TestExtractUnits(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "decimal units", input: "Calculus I 4.00units", want: "4"},
		{name: "spaced units", input: "Calculus I 4.5 units", want: "4.5"},
		{name: "credits", input: "Composition 3 credits", want: "3"},
		{name: "hours", input: "Lab 2 hrs", want: "2"},
		{name: "parenthesized", input: "Physics (5)", want: "5"},
		{name: "trailing integer", input: "Intro to Programming 4", want: "4"},
		{name: "trailing out of range", input: "Room 101", want: DefaultUnits},
		{name: "absent", input: "Calculus", want: DefaultUnits},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractUnits(tc.input); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestStripUnits(t *testing.T) {
	if got := StripUnits("Calculus I (4.00 units)"); got != "Calculus I" {
		t.Fatalf("got %q", got)
	}
	if got := StripUnits("Physics (5) lab"); got != "Physics lab" {
		t.Fatalf("got %q", got)
	}
}
