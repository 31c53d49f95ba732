package config

import (
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/web3-frozen/ousd-analytics/internal/dune"
)

// Query is one entry of the Dune query catalogue.
type Query struct {
	Name       string           `yaml:"name"`
	QueryID    int64            `yaml:"query_id"`
	Schedule   string           `yaml:"schedule"`
	Parameters []dune.Parameter `yaml:"parameters"`
}

type Queries struct {
	Queries []Query `yaml:"queries"`
}

// Lookup returns the query with the given name.
func (q Queries) Lookup(name string) (Query, bool) {
	for _, query := range q.Queries {
		if query.Name == name {
			return query, true
		}
	}
	return Query{}, false
}

// DefaultQueries is used when no QUERIES_FILE is configured.
func DefaultQueries() Queries {
	return Queries{Queries: []Query{
		{
			Name:     "revenue",
			QueryID:  2963386,
			Schedule: "0 */6 * * *",
			Parameters: []dune.Parameter{
				{Name: "token", Value: "OUSD"},
				{Name: "days", Value: "365"},
			},
		},
	}}
}

// LoadQueries reads a YAML query catalogue. An empty path yields the
// defaults.
func LoadQueries(path string) (Queries, error) {
	if path == "" {
		return DefaultQueries(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Queries{}, fmt.Errorf("read queries file: %w", err)
	}
	var q Queries
	if err := yaml.Unmarshal(data, &q); err != nil {
		return Queries{}, fmt.Errorf("parse queries file: %w", err)
	}
	if err := q.validate(); err != nil {
		return Queries{}, err
	}
	return q, nil
}

func (q Queries) validate() error {
	seen := make(map[string]bool, len(q.Queries))
	for i, query := range q.Queries {
		if query.Name == "" {
			return fmt.Errorf("query %d: missing name", i)
		}
		if seen[query.Name] {
			return fmt.Errorf("query %q: duplicate name", query.Name)
		}
		seen[query.Name] = true
		if query.QueryID <= 0 {
			return fmt.Errorf("query %q: query_id must be positive", query.Name)
		}
		if query.Schedule != "" {
			if _, err := cron.ParseStandard(query.Schedule); err != nil {
				return fmt.Errorf("query %q: bad schedule: %w", query.Name, err)
			}
		}
	}
	return nil
}
