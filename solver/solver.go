// Package solver implements code-breaking strategies for the four digit,
// unique-digit code. It shares only the feedback primitive with the game.
package solver

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/wfunc/bullscows/game"
)

// searchLimit caps the number of guesses scored per turn by the
// partition-based strategies.
const searchLimit = 200

var ErrUnknownStrategy = errors.New("unknown strategy")

// Names lists the strategies New accepts.
var Names = []string{"random", "minimax", "entropy", "frequency"}

// AllCodes returns every code with four distinct digits in ascending order.
// There are 5040 of them.
func AllCodes() []string {
	codes := make([]string, 0, 5040)
	for n := 0; n < 10000; n++ {
		s := fmt.Sprintf("%04d", n)
		if game.ValidSecret(s) {
			codes = append(codes, s)
		}
	}
	return codes
}

// Filter keeps the candidates that would have produced fb for guess.
func Filter(candidates []string, guess string, fb game.Feedback) []string {
	out := candidates[:0:0]
	for _, c := range candidates {
		if game.Score(c, guess) == fb {
			out = append(out, c)
		}
	}
	return out
}

// Strategy picks guesses and narrows its candidates from feedback.
type Strategy interface {
	Name() string
	Reset()
	Next() string
	Observe(guess string, fb game.Feedback)
	Remaining() int
}

// New returns the strategy called name. rng is only used by "random"; nil
// means a fixed seed.
func New(name string, rng *rand.Rand) (Strategy, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	var s Strategy
	switch name {
	case "random":
		s = &Random{rng: rng}
	case "minimax":
		s = &Minimax{}
	case "entropy":
		s = &Entropy{}
	case "frequency":
		s = &Frequency{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	s.Reset()
	return s, nil
}

type base struct {
	candidates []string
}

func (b *base) Reset() { b.candidates = AllCodes() }

func (b *base) Observe(guess string, fb game.Feedback) {
	b.candidates = Filter(b.candidates, guess, fb)
}

func (b *base) Remaining() int { return len(b.candidates) }

func (b *base) searchSpace() []string {
	if len(b.candidates) > searchLimit {
		return b.candidates[:searchLimit]
	}
	return b.candidates
}

// partition counts candidates per feedback for guess.
func (b *base) partition(guess string) map[game.Feedback]int {
	parts := make(map[game.Feedback]int)
	for _, c := range b.candidates {
		parts[game.Score(c, guess)]++
	}
	return parts
}

// bestBy returns the guess from the search space with the lowest score.
// Ties keep the earlier guess.
func (b *base) bestBy(score func(parts map[game.Feedback]int) float64) string {
	switch len(b.candidates) {
	case 0:
		return ""
	case 1:
		return b.candidates[0]
	}
	best, bestScore := "", 0.0
	for _, g := range b.searchSpace() {
		sc := score(b.partition(g))
		if best == "" || sc < bestScore {
			best, bestScore = g, sc
		}
	}
	return best
}

// Random guesses any remaining candidate.
type Random struct {
	base
	rng *rand.Rand
}

func (r *Random) Name() string { return "random" }

func (r *Random) Next() string {
	if len(r.candidates) == 0 {
		return ""
	}
	return r.candidates[r.rng.Intn(len(r.candidates))]
}

// Minimax minimizes the largest partition.
type Minimax struct{ base }

func (m *Minimax) Name() string { return "minimax" }

func (m *Minimax) Next() string {
	return m.bestBy(func(parts map[game.Feedback]int) float64 {
		worst := 0
		for _, n := range parts {
			if n > worst {
				worst = n
			}
		}
		return float64(worst)
	})
}

// Entropy minimizes the expected number of remaining candidates.
type Entropy struct{ base }

func (e *Entropy) Name() string { return "entropy" }

func (e *Entropy) Next() string {
	total := float64(len(e.candidates))
	return e.bestBy(func(parts map[game.Feedback]int) float64 {
		expected := 0.0
		for _, n := range parts {
			expected += float64(n*n) / total
		}
		return expected
	})
}

// Frequency picks the candidate whose digits are most common in their
// positions across the remaining candidates.
type Frequency struct{ base }

func (f *Frequency) Name() string { return "frequency" }

func (f *Frequency) Next() string {
	switch len(f.candidates) {
	case 0:
		return ""
	case 1:
		return f.candidates[0]
	}
	var freq [game.CodeLength][10]int
	for _, c := range f.candidates {
		for i := 0; i < game.CodeLength; i++ {
			freq[i][c[i]-'0']++
		}
	}
	best, bestScore := "", -1
	for _, c := range f.candidates {
		score := 0
		for i := 0; i < game.CodeLength; i++ {
			score += freq[i][c[i]-'0']
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

// Result is the outcome of one simulated game.
type Result struct {
	Solved  bool
	Turns   int
	Guesses []string
}

// Play lets s break secret in at most maxTurns guesses. s is reset first.
func Play(secret string, s Strategy, maxTurns int) (Result, error) {
	if err := game.ValidateSecret(secret); err != nil {
		return Result{}, err
	}
	s.Reset()
	var res Result
	for res.Turns < maxTurns {
		guess := s.Next()
		if guess == "" {
			return res, fmt.Errorf("%s ran out of candidates after %d guesses", s.Name(), res.Turns)
		}
		res.Turns++
		res.Guesses = append(res.Guesses, guess)
		fb := game.Score(secret, guess)
		if fb.Solved() {
			res.Solved = true
			return res, nil
		}
		s.Observe(guess, fb)
	}
	return res, nil
}
