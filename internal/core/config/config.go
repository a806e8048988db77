// Package config provides configuration management for the rule governance
// service.
package config

import (
	"fmt"

	"github.com/finsentry/rulegov/internal/condition"
	"github.com/finsentry/rulegov/internal/types"
)

// Config holds service-wide settings plus the field catalog that condition
// validation runs against.
type Config struct {
	DatabaseURL  string
	LogLevel     string
	LogFormat    string
	MaxTreeDepth int
	Fields       []FieldSpec
}

// FieldSpec declares one validatable transaction field: its data type, the
// operators rules may apply to it, and whether list operators are allowed.
type FieldSpec struct {
	Key        string   `mapstructure:"key"`
	DataType   string   `mapstructure:"data_type"`
	Operators  []string `mapstructure:"operators"`
	MultiValue bool     `mapstructure:"multi_value"`
}

// DefaultConfig returns configuration with default values. The default
// field catalog covers the common card-transaction dimensions; deployments
// extend it via the config file.
func DefaultConfig() *Config {
	return &Config{
		DatabaseURL:  "sqlite://rulegov.db",
		LogLevel:     "info",
		LogFormat:    "json",
		MaxTreeDepth: types.DefaultMaxTreeDepth,
		Fields:       defaultFields(),
	}
}

func defaultFields() []FieldSpec {
	comparable := []string{"EQ", "NE", "GT", "GTE", "LT", "LTE", "BETWEEN", "IN", "NOT_IN", "IS_NULL", "IS_NOT_NULL"}
	text := []string{"EQ", "NE", "IN", "NOT_IN", "LIKE", "NOT_LIKE", "CONTAINS", "STARTS_WITH", "ENDS_WITH", "REGEX", "IS_NULL", "IS_NOT_NULL"}
	enum := []string{"EQ", "NE", "IN", "NOT_IN", "IS_NULL", "IS_NOT_NULL"}

	return []FieldSpec{
		{Key: "transaction.amount", DataType: "NUMBER", Operators: comparable, MultiValue: true},
		{Key: "transaction.currency", DataType: "ENUM", Operators: enum, MultiValue: true},
		{Key: "transaction.timestamp", DataType: "DATE", Operators: comparable, MultiValue: false},
		{Key: "transaction.mcc", DataType: "STRING", Operators: text, MultiValue: true},
		{Key: "transaction.network", DataType: "ENUM", Operators: enum, MultiValue: true},
		{Key: "card.bin", DataType: "STRING", Operators: text, MultiValue: true},
		{Key: "card.country", DataType: "ENUM", Operators: enum, MultiValue: true},
		{Key: "merchant.id", DataType: "STRING", Operators: text, MultiValue: true},
		{Key: "merchant.name", DataType: "STRING", Operators: text, MultiValue: false},
		{Key: "customer.risk_score", DataType: "NUMBER", Operators: comparable, MultiValue: false},
		{Key: "customer.is_new", DataType: "BOOLEAN", Operators: []string{"EQ", "NE", "IS_NULL", "IS_NOT_NULL"}, MultiValue: false},
	}
}

// Registry builds the condition field registry from the configured catalog.
func (c *Config) Registry() (condition.StaticRegistry, error) {
	fields := make([]condition.Field, 0, len(c.Fields))
	for _, spec := range c.Fields {
		f, err := spec.toField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return condition.NewStaticRegistry(fields), nil
}

func (s FieldSpec) toField() (condition.Field, error) {
	if s.Key == "" {
		return condition.Field{}, fmt.Errorf("field key cannot be empty")
	}
	dt := condition.DataType(s.DataType)
	if !dt.Valid() {
		return condition.Field{}, fmt.Errorf("field %s: unknown data type %q", s.Key, s.DataType)
	}
	ops := make([]condition.Operator, 0, len(s.Operators))
	for _, name := range s.Operators {
		op := condition.Operator(name)
		if _, ok := op.Arity(); !ok {
			return condition.Field{}, fmt.Errorf("field %s: unknown operator %q", s.Key, name)
		}
		ops = append(ops, op)
	}
	return condition.Field{
		Key:        s.Key,
		DataType:   dt,
		Operators:  ops,
		MultiValue: s.MultiValue,
	}, nil
}
