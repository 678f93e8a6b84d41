package speech

import "math"

// MaxNBest bounds the hypotheses of one attempt. The remote service returns
// a single result per stream, so n-best requests still yield one entry.
const MaxNBest = 1

// Hypothesis is one recognition result.
type Hypothesis struct {
	Text  string
	Tag   string
	Score int // 0..100
}

// BuildResults converts a finalized response into an ordered hypothesis
// list. The first entry is the primary result.
func BuildResults(resp *Response, nbest bool) []Hypothesis {
	if resp == nil {
		return nil
	}

	n := 1
	if nbest {
		n = MaxNBest
	}

	results := make([]Hypothesis, 0, n)
	results = append(results, Hypothesis{
		Text:  resp.Utterance,
		Tag:   resp.Intent,
		Score: score(resp.Confidence, resp.Probability),
	})
	return results
}

func score(confidence, probability float64) int {
	s := math.Round(confidence * probability * 100)
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return int(s)
}
