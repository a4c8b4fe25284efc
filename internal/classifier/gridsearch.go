package classifier

// #region imports
import (
	"github.com/pkg/errors"
)

// #endregion imports

// #region params

// Params is one point of the hyper-parameter grid.
type Params struct {
	NGramMax int     `json:"ngram_max"`
	Alpha    float64 `json:"alpha"`
}

// DefaultGrid is the alpha x n-gram grid searched on every training run,
// alpha varying slowest.
func DefaultGrid() []Params {
	var grid []Params
	for _, alpha := range []float64{0.1, 0.5, 1.0, 2.0} {
		for _, ngram := range []int{1, 2} {
			grid = append(grid, Params{NGramMax: ngram, Alpha: alpha})
		}
	}
	return grid
}

// #endregion params

// #region folds

// StratifiedFolds assigns each sample a test fold in [0, k) so every fold gets
// an even share of each class. Assignment is deterministic: classes are
// numbered by first appearance, sorted labels are dealt round-robin to decide
// per-fold quotas, and each class fills its quotas in sample order.
// k is lowered to the largest class size when every class is smaller than k.
// The effective k is returned; k < 2 means cross-validation is impossible.
func StratifiedFolds(labels []string, k int) ([]int, int) {
	classOf := make(map[string]int)
	encoded := make([]int, len(labels))
	var counts []int
	for i, l := range labels {
		c, ok := classOf[l]
		if !ok {
			c = len(counts)
			classOf[l] = c
			counts = append(counts, 0)
		}
		encoded[i] = c
		counts[c]++
	}

	maxCount := 0
	for _, n := range counts {
		if n > maxCount {
			maxCount = n
		}
	}
	if k > maxCount {
		k = maxCount
	}
	if k < 2 {
		return nil, k
	}

	// Sorted encoded labels, expanded from the class counts.
	order := make([]int, 0, len(labels))
	for c, n := range counts {
		for i := 0; i < n; i++ {
			order = append(order, c)
		}
	}
	allocation := make([][]int, k)
	for f := 0; f < k; f++ {
		allocation[f] = make([]int, len(counts))
		for i := f; i < len(order); i += k {
			allocation[f][order[i]]++
		}
	}

	folds := make([]int, len(labels))
	for c := range counts {
		var slots []int
		for f := 0; f < k; f++ {
			for n := 0; n < allocation[f][c]; n++ {
				slots = append(slots, f)
			}
		}
		next := 0
		for i, e := range encoded {
			if e == c {
				folds[i] = slots[next]
				next++
			}
		}
	}
	return folds, k
}

// #endregion folds

// #region grid-search

// SearchResult reports the winning grid point and its mean CV accuracy.
type SearchResult struct {
	Best      Params
	BestScore float64
	Scores    []float64 // aligned with the grid
	Folds     int
}

// GridSearch cross-validates every grid point with stratified k-fold accuracy.
// The first point with the highest mean score wins. When the data cannot be
// split into at least two folds, every score is zero and the first point wins.
func GridSearch(docs, labels []string, grid []Params, k int) (SearchResult, error) {
	if len(docs) != len(labels) {
		return SearchResult{}, errors.Errorf("docs/labels mismatch: %d vs %d", len(docs), len(labels))
	}
	if len(grid) == 0 {
		return SearchResult{}, errors.New("empty parameter grid")
	}

	folds, k := StratifiedFolds(labels, k)
	res := SearchResult{Best: grid[0], Scores: make([]float64, len(grid)), Folds: k}
	if k < 2 {
		return res, nil
	}

	best := -1.0
	for gi, p := range grid {
		var total float64
		for f := 0; f < k; f++ {
			total += foldAccuracy(docs, labels, folds, f, p)
		}
		score := total / float64(k)
		res.Scores[gi] = score
		if score > best {
			best = score
			res.Best = p
			res.BestScore = score
		}
	}
	return res, nil
}

// foldAccuracy trains on every fold but f and scores on f. A training split
// with no usable vocabulary scores zero.
func foldAccuracy(docs, labels []string, folds []int, f int, p Params) float64 {
	var trainDocs, trainLabels, testDocs, testLabels []string
	for i, fold := range folds {
		if fold == f {
			testDocs = append(testDocs, docs[i])
			testLabels = append(testLabels, labels[i])
		} else {
			trainDocs = append(trainDocs, docs[i])
			trainLabels = append(trainLabels, labels[i])
		}
	}
	if len(testDocs) == 0 || len(trainDocs) == 0 {
		return 0
	}

	m, err := Fit(trainDocs, trainLabels, p)
	if err != nil {
		return 0
	}
	correct := 0
	for i, d := range testDocs {
		row, _ := m.Vectorizer.Transform(d)
		if m.Bayes.Predict(row) == testLabels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(testDocs))
}

// #endregion grid-search
