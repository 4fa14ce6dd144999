// game/feedback.go
package game

// CodeLength is the number of digits in every secret and guess.
const CodeLength = 4

// Feedback holds the result of comparing a guess against a secret.
type Feedback struct {
	Strikes int `json:"strikes"`
	Balls   int `json:"balls"`
}

// Solved reports whether every position matched.
func (f Feedback) Solved() bool {
	return f.Strikes == CodeLength
}

// Score compares secret and guess. Strikes count equal digits in equal
// positions; balls count shared digits minus strikes. Inputs that are not
// both CodeLength long score (0, 0).
func Score(secret, guess string) Feedback {
	if len(secret) != CodeLength || len(guess) != CodeLength {
		return Feedback{}
	}

	var inSecret, inGuess [256]bool
	strikes := 0
	for i := 0; i < CodeLength; i++ {
		if secret[i] == guess[i] {
			strikes++
		}
		inSecret[secret[i]] = true
		inGuess[guess[i]] = true
	}

	common := 0
	for c := 0; c < len(inSecret); c++ {
		if inSecret[c] && inGuess[c] {
			common++
		}
	}
	return Feedback{Strikes: strikes, Balls: common - strikes}
}
