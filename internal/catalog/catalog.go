package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed topics.yaml
var defaultTopics []byte

var ErrInvalidCatalog = errors.New("invalid catalog")

type ChartType string

const (
	ChartPie      ChartType = "pie"
	ChartDoughnut ChartType = "doughnut"
	ChartBar      ChartType = "bar"
	ChartRadar    ChartType = "radar"
)

func (c ChartType) Valid() bool {
	switch c {
	case ChartPie, ChartDoughnut, ChartBar, ChartRadar:
		return true
	}
	return false
}

type Option struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

type Topic struct {
	ID          string    `yaml:"id"`
	Title       string    `yaml:"title"`
	Question    string    `yaml:"question"`
	ChartType   ChartType `yaml:"chartType"`
	Implemented bool      `yaml:"implemented"`
	Options     []Option  `yaml:"options"`
}

// HasOption reports whether optionID belongs to the topic.
func (t Topic) HasOption(optionID string) bool {
	for _, o := range t.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// Catalog is the ordered, immutable list of topics. Build one with Parse, Load
// or Default; the zero value is empty.
type Catalog struct {
	topics []Topic
	index  map[string]int
}

type file struct {
	Topics []Topic `yaml:"topics"`
}

func Default() *Catalog {
	c, err := Parse(defaultTopics)
	if err != nil {
		// embedded file is covered by tests
		panic(err)
	}
	return c
}

// Load reads a catalog from path. An empty path yields the embedded default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(f.Topics)
}

func New(topics []Topic) (*Catalog, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("%w: no topics", ErrInvalidCatalog)
	}

	c := &Catalog{
		topics: make([]Topic, 0, len(topics)),
		index:  make(map[string]int, len(topics)),
	}
	for _, t := range topics {
		if err := validate(t); err != nil {
			return nil, err
		}
		if _, dup := c.index[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate topic %q", ErrInvalidCatalog, t.ID)
		}
		t.Options = append([]Option(nil), t.Options...)
		c.index[t.ID] = len(c.topics)
		c.topics = append(c.topics, t)
	}
	return c, nil
}

func validate(t Topic) error {
	if t.ID == "" {
		return fmt.Errorf("%w: topic without id", ErrInvalidCatalog)
	}
	if !t.ChartType.Valid() {
		return fmt.Errorf("%w: topic %q has chart type %q", ErrInvalidCatalog, t.ID, t.ChartType)
	}
	if t.Implemented && len(t.Options) == 0 {
		return fmt.Errorf("%w: topic %q is implemented but has no options", ErrInvalidCatalog, t.ID)
	}
	seen := make(map[string]bool, len(t.Options))
	for _, o := range t.Options {
		if o.ID == "" {
			return fmt.Errorf("%w: topic %q has an option without id", ErrInvalidCatalog, t.ID)
		}
		if seen[o.ID] {
			return fmt.Errorf("%w: topic %q repeats option %q", ErrInvalidCatalog, t.ID, o.ID)
		}
		seen[o.ID] = true
	}
	return nil
}

func (c *Catalog) Lookup(id string) (Topic, bool) {
	i, ok := c.index[id]
	if !ok {
		return Topic{}, false
	}
	return c.topics[i], true
}

// Topics returns the topics in catalog order. Callers must not modify the slice.
func (c *Catalog) Topics() []Topic { return c.topics }

func (c *Catalog) Len() int { return len(c.topics) }
