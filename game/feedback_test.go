package game

import (
	"testing"
)

func TestScore(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		guess  string
		want   Feedback
	}{
		{name: "exact match", secret: "5678", guess: "5678", want: Feedback{Strikes: 4}},
		{name: "two strikes two balls", secret: "5678", guess: "5687", want: Feedback{Strikes: 2, Balls: 2}},
		{name: "all balls", secret: "1234", guess: "4321", want: Feedback{Balls: 4}},
		{name: "nothing shared", secret: "1234", guess: "5678", want: Feedback{}},
		{name: "repeated digit in guess", secret: "1234", guess: "1111", want: Feedback{Strikes: 1}},
		{name: "repeated digit off position", secret: "1234", guess: "2222", want: Feedback{Strikes: 1}},
		{name: "short secret", secret: "123", guess: "1234", want: Feedback{}},
		{name: "long guess", secret: "1234", guess: "12345", want: Feedback{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Score(tc.secret, tc.guess)
			if got != tc.want {
				t.Fatalf("Score(%q, %q) = %+v, want %+v", tc.secret, tc.guess, got, tc.want)
			}
		})
	}
}

func TestScore_BoundedOverAllCodes(t *testing.T) {
	var codes []string
	for a := '0'; a <= '9'; a++ {
		for b := '0'; b <= '9'; b++ {
			for c := '0'; c <= '9'; c++ {
				for d := '0'; d <= '9'; d++ {
					code := string([]rune{a, b, c, d})
					if ValidSecret(code) {
						codes = append(codes, code)
					}
				}
			}
		}
	}
	if len(codes) != 5040 {
		t.Fatalf("expected 5040 unique-digit codes, got %d", len(codes))
	}

	samples := []string{"0123", "9876", "5678", "1357"}
	for _, s := range codes {
		if got := Score(s, s); got != (Feedback{Strikes: 4}) {
			t.Fatalf("Score(%s, %s) = %+v, want 4 strikes", s, s, got)
		}
		for _, g := range samples {
			fb := Score(s, g)
			if fb.Strikes+fb.Balls > 4 || fb.Balls < 0 {
				t.Fatalf("Score(%s, %s) = %+v out of bounds", s, g, fb)
			}
		}
	}
}

func TestValidators(t *testing.T) {
	cases := []struct {
		in          string
		validSecret bool
		validGuess  bool
	}{
		{"1234", true, true},
		{"1123", false, true},
		{"0000", false, true},
		{"12a4", false, false},
		{"123", false, false},
		{"12345", false, false},
		{"", false, false},
		{"１２３４", false, false},
	}

	for _, tc := range cases {
		if got := ValidSecret(tc.in); got != tc.validSecret {
			t.Errorf("ValidSecret(%q) = %v, want %v", tc.in, got, tc.validSecret)
		}
		if got := ValidateGuess(tc.in) == nil; got != tc.validGuess {
			t.Errorf("ValidateGuess(%q) ok = %v, want %v", tc.in, got, tc.validGuess)
		}
	}
}
