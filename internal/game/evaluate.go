// internal/game/evaluate.go
//
// Digit set evaluator.
// Responsibilities:
//   - Validate secrets and guesses (length == room mode, ASCII digits,
//     pairwise distinct).
//   - Score a guess against a secret: hits = how many distinct digits the
//     two strings share, position irrelevant.
//
// Notes:
//   - Because both strings are pairwise distinct, the hit count is exactly
//     the cardinality of the set intersection; no frequency bookkeeping is
//     needed.
//   - A guess with hits == len(secret) has identified the secret's full
//     digit set and counts as a crack, even when the digit order differs.

package game

const (
	// MinMode and MaxMode bound the secret length a room may be created
	// with. Mode 1 is a degenerate single-digit game but still legal.
	MinMode = 1
	MaxMode = 4
)

// ValidateSecret checks that s is usable as a secret or guess in a room of
// the given mode: exactly mode characters, every one an ASCII digit, all
// pairwise distinct. Leading zeros are fine; "0123" is a valid 4-digit
// secret.
func ValidateSecret(s string, mode int) bool {
	if len(s) != mode {
		return false
	}
	var seen [10]bool
	for _, r := range s {
		d := digitIdx(r)
		if d < 0 || seen[d] {
			return false
		}
		seen[d] = true
	}
	return true
}

// Evaluate counts the distinct digits secret and guess have in common.
//
// Pass 1: record the secret's digits in a membership table.
// Pass 2: count guess digits found in the table.
//
// Both inputs are assumed validated (same length, distinct digits), so the
// result ranges 0..len(secret) and equals the intersection cardinality.
func Evaluate(secret, guess string) int {
	var inSecret [10]bool
	for _, r := range secret {
		inSecret[digitIdx(r)] = true
	}
	hits := 0
	for _, r := range guess {
		if inSecret[digitIdx(r)] {
			hits++
		}
	}
	return hits
}

// digitIdx maps an ASCII digit rune to 0..9, or -1 for anything else.
func digitIdx(r rune) int {
	if r < '0' || r > '9' {
		return -1
	}
	return int(r - '0')
}
