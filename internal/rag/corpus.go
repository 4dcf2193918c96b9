// Package rag answers questions from a corpus of passages: BM25 retrieval
// followed by an OpenAI-compatible chat completion grounded on the hits.
package rag

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Passage is a retrievable chunk of a source document
type Passage struct {
	Source string
	Text   string
}

// Document is one entry of a corpus file. Passages may be listed
// explicitly; otherwise Text is split on blank lines.
type Document struct {
	Source   string   `yaml:"source"`
	Text     string   `yaml:"text"`
	Passages []string `yaml:"passages"`
}

type corpusFile struct {
	Documents []Document `yaml:"documents"`
}

// LoadCorpus reads a YAML corpus file and flattens it into passages
func LoadCorpus(path string) ([]Passage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading corpus")
	}
	return ParseCorpus(data)
}

// ParseCorpus flattens YAML corpus data into passages
func ParseCorpus(data []byte) ([]Passage, error) {
	var f corpusFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parsing corpus")
	}

	var passages []Passage
	for i, doc := range f.Documents {
		if doc.Source == "" {
			return nil, errors.Errorf("document %d has no source", i)
		}
		chunks := doc.Passages
		if len(chunks) == 0 {
			chunks = splitParagraphs(doc.Text)
		}
		for _, c := range chunks {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			passages = append(passages, Passage{Source: doc.Source, Text: c})
		}
	}
	return passages, nil
}

func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n\n")
}
