package similarity

import "math"

// Weights balance textual and vector similarity when both are available.
type Weights struct {
	Text   float64
	Vector float64
}

// DefaultWeights favour the textual score slightly.
var DefaultWeights = Weights{Text: 0.6, Vector: 0.4}

// Trigrams returns the set of rune trigrams of the folded, space-padded text.
func Trigrams(text string) map[string]struct{} {
	folded := Fold(text)
	if folded == "" {
		return nil
	}
	padded := []rune("  " + folded + " ")
	out := make(map[string]struct{}, len(padded))
	for i := 0; i+3 <= len(padded); i++ {
		out[string(padded[i:i+3])] = struct{}{}
	}
	return out
}

// TrigramDice returns the Dice coefficient of the trigram sets of a and b.
func TrigramDice(a, b string) float64 {
	ta, tb := Trigrams(a), Trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for gram := range ta {
		if _, ok := tb[gram]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ta)+len(tb))
}

// Text scores two names in [0, 1]: 1 for identical folded forms, otherwise
// the larger of trigram Dice and token cosine.
func Text(a, b string) float64 {
	fa, fb := Fold(a), Fold(b)
	if fa == "" || fb == "" {
		return 0
	}
	if fa == fb {
		return 1
	}
	return math.Max(TrigramDice(fa, fb), CosineSimilarity(NewFingerprint(fa), NewFingerprint(fb)))
}

// Vector returns the cosine similarity of two embeddings clamped to [0, 1].
// Mismatched or empty vectors score 0.
func Vector(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, cos))
}

// Combined scores a candidate. Without embeddings on both sides it is the
// textual score; otherwise the weighted mean of textual and vector scores.
func Combined(nameA, nameB string, vecA, vecB []float32, w Weights) float64 {
	text := Text(nameA, nameB)
	if len(vecA) == 0 || len(vecB) == 0 || w.Vector <= 0 {
		return text
	}
	total := w.Text + w.Vector
	if total <= 0 {
		return text
	}
	return (w.Text*text + w.Vector*Vector(vecA, vecB)) / total
}
