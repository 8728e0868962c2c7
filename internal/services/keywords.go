package services

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/logger"
)

// POS is a coarse part-of-speech class.
type POS string

const (
	PosNoun  POS = "NOUN"
	PosPropn POS = "PROPN"
	PosVerb  POS = "VERB"
	PosOther POS = "X"
)

// TaggedToken is one token with its coarse part of speech.
type TaggedToken struct {
	Text string
	POS  POS
}

type Tagger interface {
	Tag(text string) ([]TaggedToken, error)
}

type Lemmatizer interface {
	Lemma(word string) string
}

// NLPModel is the process-wide language model handle. It loads on first use,
// exactly once, and is safe for concurrent use afterwards.
type NLPModel struct {
	once   sync.Once
	load   func() (Tagger, Lemmatizer, error)
	tagger Tagger
	lemmas Lemmatizer
	err    error
}

// NewNLPModel returns a handle backed by prose (tagging) and golem (lemmas).
func NewNLPModel() *NLPModel {
	return NewNLPModelWith(loadEnglishModel)
}

// NewNLPModelWith returns a handle using a custom loader.
func NewNLPModelWith(load func() (Tagger, Lemmatizer, error)) *NLPModel {
	return &NLPModel{load: load}
}

// Get returns the loaded components or the load error.
func (m *NLPModel) Get() (Tagger, Lemmatizer, error) {
	m.once.Do(func() {
		m.tagger, m.lemmas, m.err = m.load()
	})
	return m.tagger, m.lemmas, m.err
}

func loadEnglishModel() (Tagger, Lemmatizer, error) {
	lem, err := golem.New(en.New())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load english lemmatizer: %w", err)
	}
	return proseTagger{}, lem, nil
}

type proseTagger struct{}

func (proseTagger) Tag(text string) ([]TaggedToken, error) {
	doc, err := prose.NewDocument(text,
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to tag text: %w", err)
	}

	tokens := doc.Tokens()
	out := make([]TaggedToken, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, TaggedToken{Text: tok.Text, POS: coarsePOS(tok.Tag)})
	}
	return out, nil
}

// coarsePOS maps Penn Treebank tags onto the classes keyword extraction cares about.
func coarsePOS(tag string) POS {
	switch {
	case tag == "NNP" || tag == "NNPS":
		return PosPropn
	case strings.HasPrefix(tag, "NN"):
		return PosNoun
	case strings.HasPrefix(tag, "VB"):
		return PosVerb
	default:
		return PosOther
	}
}

// KeywordExtractor reduces text to a sorted set of lower-cased lemmas.
type KeywordExtractor interface {
	Extract(text string) []string
}

type keywordExtractor struct {
	model        *NLPModel
	includeVerbs bool
	log          *zap.Logger
}

func NewKeywordExtractor(model *NLPModel, includeVerbs bool, log *zap.Logger) KeywordExtractor {
	return &keywordExtractor{model: model, includeVerbs: includeVerbs, log: logger.OrNop(log)}
}

// Extract implements KeywordExtractor. When the language model cannot be
// loaded, or tagging fails, it returns an empty set.
func (k *keywordExtractor) Extract(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}

	tagger, lemmas, err := k.model.Get()
	if err != nil {
		k.log.Warn("language model unavailable, skipping keyword extraction", zap.Error(err))
		return []string{}
	}

	tokens, err := tagger.Tag(text)
	if err != nil {
		k.log.Warn("tagging failed", zap.Error(err))
		return []string{}
	}

	seen := make(map[string]struct{})
	for _, tok := range tokens {
		if !k.wanted(tok.POS) {
			continue
		}
		word := strings.ToLower(tok.Text)
		if !isAlpha(word) || isStopWord(word) {
			continue
		}
		lemma := strings.ToLower(lemmas.Lemma(word))
		if !isAlpha(lemma) || isStopWord(lemma) {
			continue
		}
		seen[lemma] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

func (k *keywordExtractor) wanted(pos POS) bool {
	switch pos {
	case PosNoun, PosPropn:
		return true
	case PosVerb:
		return k.includeVerbs
	default:
		return false
	}
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
