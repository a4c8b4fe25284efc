package classifier

// #region imports
import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// #endregion imports

// #region naive-bayes

// NaiveBayes is a multinomial naive Bayes model over TF-IDF rows with additive
// (Lidstone) smoothing. Classes are kept in sorted order.
type NaiveBayes struct {
	Alpha          float64     `json:"alpha"`
	Classes        []string    `json:"classes"`
	ClassLogPrior  []float64   `json:"class_log_prior"`
	FeatureLogProb [][]float64 `json:"feature_log_prob"`
}

// FitNaiveBayes trains on rows with the given labels over nFeatures columns.
func FitNaiveBayes(rows []SparseVector, labels []string, nFeatures int, alpha float64) (*NaiveBayes, error) {
	if len(rows) != len(labels) {
		return nil, errors.Errorf("rows/labels mismatch: %d vs %d", len(rows), len(labels))
	}
	if len(rows) == 0 {
		return nil, errors.New("no training rows")
	}
	if alpha <= 0 {
		return nil, errors.Errorf("alpha must be positive, got %v", alpha)
	}

	classes := uniqueSorted(labels)
	classIdx := make(map[string]int, len(classes))
	for i, c := range classes {
		classIdx[c] = i
	}

	classCount := make([]float64, len(classes))
	featureCount := make([][]float64, len(classes))
	for i := range featureCount {
		featureCount[i] = make([]float64, nFeatures)
	}
	for i, row := range rows {
		c := classIdx[labels[i]]
		classCount[c]++
		for j, idx := range row.Indices {
			featureCount[c][idx] += row.Values[j]
		}
	}

	nb := &NaiveBayes{
		Alpha:          alpha,
		Classes:        classes,
		ClassLogPrior:  make([]float64, len(classes)),
		FeatureLogProb: make([][]float64, len(classes)),
	}
	total := float64(len(rows))
	for c := range classes {
		nb.ClassLogPrior[c] = math.Log(classCount[c]) - math.Log(total)

		var sum float64
		for _, fc := range featureCount[c] {
			sum += fc + alpha
		}
		logSum := math.Log(sum)
		flp := make([]float64, nFeatures)
		for j, fc := range featureCount[c] {
			flp[j] = math.Log(fc+alpha) - logSum
		}
		nb.FeatureLogProb[c] = flp
	}
	return nb, nil
}

// PredictProba returns the posterior probability of each class, aligned with Classes.
func (nb *NaiveBayes) PredictProba(row SparseVector) []float64 {
	jll := make([]float64, len(nb.Classes))
	for c := range nb.Classes {
		s := nb.ClassLogPrior[c]
		flp := nb.FeatureLogProb[c]
		for j, idx := range row.Indices {
			if idx < len(flp) {
				s += row.Values[j] * flp[idx]
			}
		}
		jll[c] = s
	}

	maxLL := math.Inf(-1)
	for _, v := range jll {
		if v > maxLL {
			maxLL = v
		}
	}
	var sum float64
	for _, v := range jll {
		sum += math.Exp(v - maxLL)
	}
	logNorm := maxLL + math.Log(sum)

	proba := make([]float64, len(jll))
	for c, v := range jll {
		proba[c] = math.Exp(v - logNorm)
	}
	return proba
}

// Predict returns the most probable class; ties go to the earlier class.
func (nb *NaiveBayes) Predict(row SparseVector) string {
	proba := nb.PredictProba(row)
	best := 0
	for c := 1; c < len(proba); c++ {
		if proba[c] > proba[best] {
			best = c
		}
	}
	return nb.Classes[best]
}

// #endregion naive-bayes

// #region helpers

func uniqueSorted(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	var out []string
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// #endregion helpers
