package shieldapi

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"

	"github.com/Abhayjain-py/deepshield/internal/domain"
)

// Detector stands in for the remote deepfake-detection model. The verdict is
// derived deterministically from the file content so repeated uploads of the
// same media always agree.
type Detector struct {
	threshold float64
}

// NewDetector creates a detector with the default decision threshold.
func NewDetector() *Detector {
	return &Detector{threshold: 0.7}
}

// Detect analyzes the media content and returns a verdict with a confidence
// score in [0,100].
func (d *Detector) Detect(content []byte) (domain.Verdict, float64) {
	sum := sha256.Sum256(content)
	raw := float64(binary.BigEndian.Uint16(sum[:2])) / math.MaxUint16

	verdict := domain.VerdictAuthentic
	if raw > d.threshold {
		verdict = domain.VerdictDeepfake
	}
	return verdict, math.Round(raw*1000) / 10
}

type categoryVocabulary struct {
	category domain.ComplaintCategory
	words    []string
}

// Classifier assigns complaints to a category by keyword scoring. Categories
// are scored in a fixed order so ties always resolve the same way.
type Classifier struct {
	vocab []categoryVocabulary
}

// NewClassifier creates a classifier with the built-in category vocabulary.
func NewClassifier() *Classifier {
	return &Classifier{
		vocab: []categoryVocabulary{
			{domain.CategoryHarassment, []string{"harass", "threat", "stalk", "intimidat", "abuse"}},
			{domain.CategoryImpersonation, []string{"impersonat", "pretend", "fake account", "pose as", "posing as"}},
			{domain.CategoryIdentityTheft, []string{"identity", "stolen", "stole my", "credentials", "passport"}},
			{domain.CategoryCyberbullying, []string{"bully", "mock", "humiliat", "ridicul", "taunt"}},
			{domain.CategoryFraud, []string{"money", "scam", "fraud", "payment", "bank"}},
			{domain.CategoryRevengePorn, []string{"intimate", "explicit", "nude", "private photo", "private video"}},
			{domain.CategoryDefamation, []string{"defam", "reputation", "slander", "libel", "false claim"}},
		},
	}
}

// Classify scores the complaint text against each category's vocabulary and
// returns the best match with a confidence in [0,100]. Ties go to the
// earliest category; text matching no category at all falls back to "other"
// at 50.
func (c *Classifier) Classify(text string) domain.Classification {
	lowered := strings.ToLower(text)

	best := domain.CategoryOther
	bestScore := 0.0
	for _, cv := range c.vocab {
		hits := 0
		for _, w := range cv.words {
			if strings.Contains(lowered, w) {
				hits++
			}
		}
		score := float64(hits) / float64(len(cv.words))
		if score > bestScore {
			best = cv.category
			bestScore = score
		}
	}

	if bestScore == 0 {
		return domain.Classification{Category: domain.CategoryOther, Confidence: 50.0}
	}
	confidence := 50 + math.Min(bestScore, 1)*50
	return domain.Classification{
		Category:   best,
		Confidence: math.Round(confidence*10) / 10,
	}
}
