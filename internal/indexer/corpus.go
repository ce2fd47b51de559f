package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/iasik/hierarchical-encoder/internal/segmenter"
)

// ReadCorpus reads a JSON lines corpus of pre-tokenized documents. Every
// record needs a non-empty, unique id.
func ReadCorpus(path string) ([]segmenter.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer f.Close()

	return DecodeCorpus(f)
}

// DecodeCorpus decodes a stream of JSON document records.
func DecodeCorpus(r io.Reader) ([]segmenter.Document, error) {
	dec := json.NewDecoder(r)
	seen := make(map[string]bool)

	var docs []segmenter.Document
	for n := 1; ; n++ {
		var doc segmenter.Document
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("record %d: %w", n, err)
		}
		if doc.ID == "" {
			return nil, fmt.Errorf("record %d: id is required", n)
		}
		if seen[doc.ID] {
			return nil, fmt.Errorf("record %d: duplicate id %q", n, doc.ID)
		}
		seen[doc.ID] = true
		docs = append(docs, doc)
	}
	return docs, nil
}
