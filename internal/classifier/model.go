package classifier

// #region imports
import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// #endregion imports

// #region errors

// ErrEmptyVocabulary is returned when training text contains no usable terms.
var ErrEmptyVocabulary = errors.New("empty vocabulary: training text has only stopwords or non-words")

// #endregion errors

// #region result

// LabelProbability pairs a class label (an answer text) with its probability.
type LabelProbability struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Result is the outcome of classifying one question.
type Result struct {
	TopLabel          string
	TopProbability    float64
	SecondProbability float64
	ProbabilityGap    float64
	Ranked            []LabelProbability
	// KnownTerms counts vocabulary features present in the question.
	KnownTerms int
}

// #endregion result

// #region model

// Model is a fitted TF-IDF vectorizer paired with a naive Bayes classifier.
type Model struct {
	Vectorizer *Vectorizer
	Bayes      *NaiveBayes
}

// Fit trains a model on docs/labels with the given parameters.
func Fit(docs, labels []string, p Params) (*Model, error) {
	v, err := FitVectorizer(docs, p.NGramMax)
	if err != nil {
		return nil, err
	}
	nb, err := FitNaiveBayes(v.TransformAll(docs), labels, v.Features(), p.Alpha)
	if err != nil {
		return nil, err
	}
	return &Model{Vectorizer: v, Bayes: nb}, nil
}

// Classify scores question against every class. Ranked holds at most topK
// entries (all when topK <= 0), sorted by descending probability with ties in
// class order.
func (m *Model) Classify(question string, topK int) Result {
	row, known := m.Vectorizer.Transform(question)
	proba := m.Bayes.PredictProba(row)

	ranked := make([]LabelProbability, len(proba))
	for i, p := range proba {
		ranked[i] = LabelProbability{Label: m.Bayes.Classes[i], Probability: p}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Probability > ranked[j].Probability
	})

	res := Result{KnownTerms: known}
	if len(ranked) > 0 {
		res.TopLabel = ranked[0].Label
		res.TopProbability = ranked[0].Probability
	}
	if len(ranked) > 1 {
		res.SecondProbability = ranked[1].Probability
	}
	res.ProbabilityGap = res.TopProbability - res.SecondProbability
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	res.Ranked = ranked
	return res
}

// #endregion model

// #region encoding

// MarshalBlobs encodes the two halves of the model for the artifact store.
func (m *Model) MarshalBlobs() (vectorizer, bayes []byte, err error) {
	vectorizer, err = json.Marshal(m.Vectorizer)
	if err != nil {
		return nil, nil, errors.Wrap(err, "marshal vectorizer")
	}
	bayes, err = json.Marshal(m.Bayes)
	if err != nil {
		return nil, nil, errors.Wrap(err, "marshal classifier")
	}
	return vectorizer, bayes, nil
}

// UnmarshalModel rebuilds a model from its stored blobs.
func UnmarshalModel(vectorizer, bayes []byte) (*Model, error) {
	var v Vectorizer
	if err := json.Unmarshal(vectorizer, &v); err != nil {
		return nil, errors.Wrap(err, "unmarshal vectorizer")
	}
	var nb NaiveBayes
	if err := json.Unmarshal(bayes, &nb); err != nil {
		return nil, errors.Wrap(err, "unmarshal classifier")
	}
	if len(v.IDF) != len(v.Vocabulary) {
		return nil, errors.New("corrupt vectorizer: vocabulary and idf differ in size")
	}
	if len(nb.Classes) == 0 || len(nb.Classes) != len(nb.ClassLogPrior) || len(nb.Classes) != len(nb.FeatureLogProb) {
		return nil, errors.New("corrupt classifier: class tables differ in size")
	}
	return &Model{Vectorizer: &v, Bayes: &nb}, nil
}

// #endregion encoding
