// Package classifier scores listings for moderation. The model is a fixed
// logistic regression over four normalized listing/seller features; training
// and model registry lookup happen outside this service.
package classifier

import (
	"math"

	"github.com/admarket/moderation/pkg/domain"
)

// Scorer returns a violation probability in [0,1] for a listing.
type Scorer interface {
	Score(f domain.ListingFeatures) float64
}

// ViolationThreshold converts a probability into a verdict.
const ViolationThreshold = 0.5

type logisticScorer struct {
	weights [4]float64
	bias    float64
}

// NewScorer builds the default scorer. Unverified sellers with few images are
// the dominant violation signal; long descriptions and higher categories pull
// the score down slightly.
func NewScorer() Scorer {
	return &logisticScorer{
		weights: [4]float64{-3.6, -2.8, -0.7, -0.4},
		bias:    1.9,
	}
}

func (s *logisticScorer) Score(f domain.ListingFeatures) float64 {
	x := normalize(f)
	z := s.bias
	for i, w := range s.weights {
		z += w * x[i]
	}
	return sigmoid(z)
}

// normalize maps raw attributes onto [0,1] feature values:
// verified flag, images capped at 20, description length capped at 5000
// characters, category scaled by 100.
func normalize(f domain.ListingFeatures) [4]float64 {
	var x [4]float64
	if f.IsVerifiedSeller {
		x[0] = 1
	}
	x[1] = math.Min(float64(f.ImagesQty)/20.0, 1.0)
	x[2] = math.Min(float64(len(f.Description))/5000.0, 1.0)
	x[3] = float64(f.Category) / 100.0
	return x
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// IsViolation applies the decision threshold to a probability.
func IsViolation(probability float64) bool {
	return probability >= ViolationThreshold
}
