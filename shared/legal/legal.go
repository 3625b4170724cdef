// Package legal serves the terms and privacy documents shown in the legal viewer.
package legal

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed documents/*.md
var files embed.FS

var (
	ErrDocumentNotFound = errors.New("legal document not found")
	errNoFrontMatter    = errors.New("missing front matter")
)

const frontMatterDelim = "---"

// Summary is a document's entry in the index
type Summary struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Version   string    `json:"version"`
	Effective time.Time `json:"effective"`
}

// Document is a rendered-as-markdown legal document
type Document struct {
	Summary
	Body string `json:"body"`
}

type frontMatter struct {
	Title     string `yaml:"title"`
	Version   string `yaml:"version"`
	Effective string `yaml:"effective"`
}

// Library holds the parsed documents
type Library struct {
	docs map[string]Document
}

// Load parses the embedded documents
func Load() (*Library, error) {
	entries, err := files.ReadDir("documents")
	if err != nil {
		return nil, err
	}

	lib := &Library{docs: make(map[string]Document, len(entries))}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".md" {
			continue
		}
		data, err := files.ReadFile("documents/" + e.Name())
		if err != nil {
			return nil, err
		}
		slug := strings.TrimSuffix(e.Name(), ".md")
		doc, err := parse(slug, data)
		if err != nil {
			return nil, fmt.Errorf("legal document %s: %w", slug, err)
		}
		lib.docs[slug] = doc
	}
	return lib, nil
}

// MustLoad is Load for program start-up
func MustLoad() *Library {
	lib, err := Load()
	if err != nil {
		panic(err)
	}
	return lib
}

func parse(slug string, data []byte) (Document, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, frontMatterDelim+"\n") {
		return Document{}, errNoFrontMatter
	}
	rest := text[len(frontMatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontMatterDelim+"\n")
	if end < 0 {
		return Document{}, errNoFrontMatter
	}

	var fm frontMatter
	dec := yaml.NewDecoder(bytes.NewReader([]byte(rest[:end])))
	dec.KnownFields(true)
	if err := dec.Decode(&fm); err != nil {
		return Document{}, fmt.Errorf("invalid front matter: %w", err)
	}

	effective, err := time.Parse("2006-01-02", fm.Effective)
	if err != nil {
		return Document{}, fmt.Errorf("invalid effective date: %w", err)
	}

	return Document{
		Summary: Summary{
			Slug:      slug,
			Title:     fm.Title,
			Version:   fm.Version,
			Effective: effective,
		},
		Body: strings.TrimSpace(rest[end+len(frontMatterDelim)+2:]),
	}, nil
}

// Index lists the documents sorted by slug
func (l *Library) Index() []Summary {
	out := make([]Summary, 0, len(l.docs))
	for _, d := range l.docs {
		out = append(out, d.Summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// Get returns one document
func (l *Library) Get(slug string) (Document, error) {
	d, ok := l.docs[slug]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return d, nil
}
