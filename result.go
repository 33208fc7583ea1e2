package astivoice

// MatchThreshold is the score a verification must exceed to be classified as a match.
// It is a policy value, not a property of the scores.
var MatchThreshold = 0.75

// Classification is the binary classification of a similarity score
type Classification string

// Classifications
const (
	ClassificationMatched    Classification = "matched"
	ClassificationNotMatched Classification = "not_matched"
)

// Classify classifies a similarity score against MatchThreshold. The threshold itself is not a match.
func Classify(score float64) Classification {
	if score > MatchThreshold {
		return ClassificationMatched
	}
	return ClassificationNotMatched
}
