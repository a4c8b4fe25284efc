package classifier

// #region imports
import (
	"math"
	"sort"
	"strings"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/textproc"
)

// #endregion imports

// #region sparse

// SparseVector is a document row: parallel, index-ascending slices.
type SparseVector struct {
	Indices []int
	Values  []float64
}

// #endregion sparse

// #region vectorizer

// Vectorizer maps text to l2-normalised TF-IDF rows over a fixed vocabulary
// of stemmed, stopword-free n-grams.
type Vectorizer struct {
	NGramMax   int            `json:"ngram_max"`
	Vocabulary map[string]int `json:"vocabulary"`
	IDF        []float64      `json:"idf"`
}

// analyze returns every n-gram of length 1..ngramMax over the document's terms.
func analyze(doc string, ngramMax int) []string {
	terms := textproc.Terms(doc)
	if ngramMax <= 1 {
		return terms
	}
	grams := make([]string, 0, len(terms)*ngramMax)
	grams = append(grams, terms...)
	for n := 2; n <= ngramMax; n++ {
		for i := 0; i+n <= len(terms); i++ {
			grams = append(grams, strings.Join(terms[i:i+n], " "))
		}
	}
	return grams
}

// FitVectorizer learns the vocabulary and smoothed inverse document
// frequencies of docs. Feature indices follow alphabetical term order.
// It returns ErrEmptyVocabulary when no document yields a single term.
func FitVectorizer(docs []string, ngramMax int) (*Vectorizer, error) {
	if ngramMax < 1 {
		ngramMax = 1
	}
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, g := range analyze(doc, ngramMax) {
			if !seen[g] {
				seen[g] = true
				df[g]++
			}
		}
	}
	if len(df) == 0 {
		return nil, ErrEmptyVocabulary
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(docs))
	v := &Vectorizer{
		NGramMax:   ngramMax,
		Vocabulary: make(map[string]int, len(terms)),
		IDF:        make([]float64, len(terms)),
	}
	for i, term := range terms {
		v.Vocabulary[term] = i
		v.IDF[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	return v, nil
}

// Features returns the vocabulary size.
func (v *Vectorizer) Features() int {
	return len(v.IDF)
}

// Transform vectorises one document. known is the number of distinct
// vocabulary features the document contains; zero means the row is empty.
func (v *Vectorizer) Transform(doc string) (row SparseVector, known int) {
	counts := make(map[int]float64)
	for _, g := range analyze(doc, v.NGramMax) {
		if idx, ok := v.Vocabulary[g]; ok {
			counts[idx]++
		}
	}
	if len(counts) == 0 {
		return SparseVector{}, 0
	}

	row.Indices = make([]int, 0, len(counts))
	for idx := range counts {
		row.Indices = append(row.Indices, idx)
	}
	sort.Ints(row.Indices)

	row.Values = make([]float64, len(row.Indices))
	var norm float64
	for i, idx := range row.Indices {
		w := counts[idx] * v.IDF[idx]
		row.Values[i] = w
		norm += w * w
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range row.Values {
			row.Values[i] /= norm
		}
	}
	return row, len(row.Indices)
}

// TransformAll vectorises a batch of documents.
func (v *Vectorizer) TransformAll(docs []string) []SparseVector {
	rows := make([]SparseVector, len(docs))
	for i, d := range docs {
		rows[i], _ = v.Transform(d)
	}
	return rows
}

// #endregion vectorizer
