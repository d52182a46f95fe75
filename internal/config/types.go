package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"relgraph/internal/schema"
)

// Config holds the CLI configuration: connection settings, logging, and
// the declared entity schema the registry is built from.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Entities []EntityConfig `mapstructure:"entities"`
}

// DatabaseConfig holds MySQL connection parameters.
type DatabaseConfig struct {
	// DSN is a go-sql-driver DSN, e.g. "user:pass@tcp(host:4000)/db".
	DSN string `mapstructure:"dsn"`
	// PromptDSN reads the DSN interactively without echo, for DSNs
	// carrying passwords that must not land in shell history.
	PromptDSN   bool          `mapstructure:"prompt_dsn"`
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EntityConfig declares one entity type.
type EntityConfig struct {
	Name         string              `mapstructure:"name"`
	Table        string              `mapstructure:"table"`
	Columns      []string            `mapstructure:"columns"`
	PrimaryKey   []string            `mapstructure:"primary_key"`
	Associations []AssociationConfig `mapstructure:"associations"`
}

// AssociationConfig declares one association reflection. Key fields left
// empty are filled in by the registry's naming conventions.
type AssociationConfig struct {
	Name       string   `mapstructure:"name"`
	Kind       string   `mapstructure:"kind"`
	Target     string   `mapstructure:"target"`
	ForeignKey string   `mapstructure:"foreign_key"`
	LinkTable  string   `mapstructure:"link_table"`
	LeftKey    string   `mapstructure:"left_key"`
	RightKey   string   `mapstructure:"right_key"`
	Reciprocal string   `mapstructure:"reciprocal"`
	// Order terms are column names, optionally suffixed " desc".
	Order []string `mapstructure:"order"`
}

// BuildRegistry converts the declared entities into a schema registry.
func (c *Config) BuildRegistry(logger *slog.Logger) (*schema.Registry, error) {
	registry := schema.NewRegistry(logger)
	for _, ec := range c.Entities {
		entity := &schema.EntityType{
			Name:       ec.Name,
			Table:      ec.Table,
			PrimaryKey: ec.PrimaryKey,
		}
		for _, col := range ec.Columns {
			entity.Columns = append(entity.Columns, schema.Column{Name: col})
		}
		for _, ac := range ec.Associations {
			assoc, err := ac.toAssociation()
			if err != nil {
				return nil, fmt.Errorf("entity %s: %w", ec.Name, err)
			}
			entity.Associations = append(entity.Associations, assoc)
		}
		if err := registry.Register(entity); err != nil {
			return nil, err
		}
	}
	if err := registry.Finalize(); err != nil {
		return nil, err
	}
	return registry, nil
}

func (a AssociationConfig) toAssociation() (*schema.Association, error) {
	kind, err := parseKind(a.Kind)
	if err != nil {
		return nil, fmt.Errorf("association %s: %w", a.Name, err)
	}
	assoc := &schema.Association{
		Name:       a.Name,
		Kind:       kind,
		Target:     a.Target,
		ForeignKey: a.ForeignKey,
		LinkTable:  a.LinkTable,
		LeftKey:    a.LeftKey,
		RightKey:   a.RightKey,
		Reciprocal: a.Reciprocal,
	}
	for _, term := range a.Order {
		column, desc := parseOrderTerm(term)
		assoc.Order = append(assoc.Order, schema.Order{Column: column, Desc: desc})
	}
	return assoc, nil
}

func parseKind(kind string) (schema.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "many_to_one":
		return schema.ManyToOne, nil
	case "one_to_many":
		return schema.OneToMany, nil
	case "many_to_many":
		return schema.ManyToMany, nil
	default:
		return 0, fmt.Errorf("unknown association kind %q", kind)
	}
}

func parseOrderTerm(term string) (string, bool) {
	fields := strings.Fields(term)
	if len(fields) == 2 && strings.EqualFold(fields[1], "desc") {
		return fields[0], true
	}
	return strings.TrimSpace(term), false
}
