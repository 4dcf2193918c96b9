package rag

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// BM25 parameters
const (
	k1 = 1.5
	b  = 0.75
)

// Hit is a passage ranked for a query
type Hit struct {
	Passage
	Score float64
}

// Index ranks passages with Okapi BM25
type Index struct {
	passages []Passage
	terms    []map[string]int
	lengths  []int
	avgLen   float64
	df       map[string]int
}

// NewIndex tokenizes and indexes passages
func NewIndex(passages []Passage) *Index {
	idx := &Index{
		passages: passages,
		terms:    make([]map[string]int, len(passages)),
		lengths:  make([]int, len(passages)),
		df:       make(map[string]int),
	}

	total := 0
	for i, p := range passages {
		tokens := tokenize(p.Text)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for tok := range tf {
			idx.df[tok]++
		}
		idx.terms[i] = tf
		idx.lengths[i] = len(tokens)
		total += len(tokens)
	}
	if len(passages) > 0 {
		idx.avgLen = float64(total) / float64(len(passages))
	}
	return idx
}

// Len returns the number of indexed passages
func (idx *Index) Len() int { return len(idx.passages) }

// Search returns up to k passages with a positive score, best first
func (idx *Index) Search(query string, k int) []Hit {
	if k <= 0 || len(idx.passages) == 0 {
		return nil
	}

	qterms := unique(tokenize(query))
	n := float64(len(idx.passages))

	var hits []Hit
	for i, tf := range idx.terms {
		score := 0.0
		for _, q := range qterms {
			f := float64(tf[q])
			if f == 0 {
				continue
			}
			df := float64(idx.df[q])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := f + k1*(1-b+b*float64(idx.lengths[i])/idx.avgLen)
			score += idf * f * (k1 + 1) / norm
		}
		if score > 0 {
			hits = append(hits, Hit{Passage: idx.passages[i], Score: score})
		}
	}

	sort.SliceStable(hits, func(a, c int) bool {
		return hits[a].Score > hits[c].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func unique(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
