// Package similarity scores how closely two entity names (and optionally
// their embeddings) match.
//
// Names are folded (case, accents, punctuation) before comparison. The
// textual score is the larger of the trigram Dice coefficient and the token
// cosine similarity, so both typos and reordered words score well. Vector
// cosine joins through configurable weights when embeddings exist on both
// sides.
package similarity
