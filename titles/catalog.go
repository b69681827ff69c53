// Package titles provides a title catalog loaded from a YAML file.
package titles

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/ShoshinNikita/gameicons/gameicons"
)

// Catalog is an immutable set of titles. It is safe for concurrent use.
type Catalog struct {
	titles map[gameicons.TitleID]gameicons.Title
	// sorted contains titles sorted by name.
	sorted []gameicons.Title
	// names contains normalized titles names, indexes match sorted.
	names []string
}

var _ gameicons.TitleResolver = (*Catalog)(nil)

type catalogFile struct {
	Titles []struct {
		// ID is a string because ids without letters would be parsed as decimal numbers.
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
		Path string `yaml:"path"`
	} `yaml:"titles"`
}

// Load reads the catalog file. Relative title paths are resolved against the catalog directory.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("couldn't parse catalog %q: %w", path, err)
	}

	dir := filepath.Dir(path)

	titles := make([]gameicons.Title, 0, len(file.Titles))
	for i, t := range file.Titles {
		id, err := gameicons.ParseTitleID(t.ID)
		if err != nil {
			return nil, fmt.Errorf("title #%d: %w", i+1, err)
		}
		if t.Path == "" {
			return nil, fmt.Errorf("title #%d (%s) has empty path", i+1, id)
		}
		titlePath := t.Path
		if !filepath.IsAbs(titlePath) {
			titlePath = filepath.Join(dir, titlePath)
		}
		titles = append(titles, gameicons.Title{
			ID:   id,
			Name: t.Name,
			Path: titlePath,
		})
	}
	return NewCatalog(titles)
}

// NewCatalog returns an error if titles contain duplicate ids.
func NewCatalog(titles []gameicons.Title) (*Catalog, error) {
	c := &Catalog{
		titles: make(map[gameicons.TitleID]gameicons.Title, len(titles)),
		sorted: slices.Clone(titles),
	}
	for _, t := range titles {
		if _, ok := c.titles[t.ID]; ok {
			return nil, fmt.Errorf("duplicate title id %s", t.ID)
		}
		c.titles[t.ID] = t
	}

	slices.SortFunc(c.sorted, func(a, b gameicons.Title) int {
		if n := strings.Compare(normalize(a.Name), normalize(b.Name)); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
	c.names = make([]string, len(c.sorted))
	for i, t := range c.sorted {
		c.names[i] = normalize(t.Name)
	}

	return c, nil
}

// Resolve returns [gameicons.ErrTitleNotFound] for unknown titles.
func (c *Catalog) Resolve(_ context.Context, id gameicons.TitleID) (gameicons.Title, error) {
	t, ok := c.titles[id]
	if !ok {
		return gameicons.Title{}, fmt.Errorf("%w: %s", gameicons.ErrTitleNotFound, id)
	}
	return t, nil
}

// List returns all titles sorted by name.
func (c *Catalog) List() []gameicons.Title {
	return slices.Clone(c.sorted)
}

// Search returns titles with names containing the query. The comparison ignores case
// and diacritics. Empty query matches all titles.
func (c *Catalog) Search(query string) []gameicons.Title {
	query = normalize(query)
	if query == "" {
		return c.List()
	}

	var res []gameicons.Title
	for i, name := range c.names {
		if strings.Contains(name, query) {
			res = append(res, c.sorted[i])
		}
	}
	return res
}

func (c *Catalog) Len() int {
	return len(c.sorted)
}

// normalize folds case and removes combining marks: "Pokémon" -> "pokemon".
func normalize(s string) string {
	s = norm.NFKD.String(strings.TrimSpace(s))

	var b strings.Builder
	for _, r := range cases.Fold().String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
