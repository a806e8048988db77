// internal/condition/registry.go
package condition

// DataType is the declared type of a registry field. Literal values in
// leaves must match it exactly; there is no cross-type coercion.
type DataType string

const (
	DataString  DataType = "STRING"
	DataNumber  DataType = "NUMBER"
	DataBoolean DataType = "BOOLEAN"
	DataDate    DataType = "DATE"
	DataEnum    DataType = "ENUM"
)

// Valid reports whether dt is a known data type.
func (dt DataType) Valid() bool {
	switch dt {
	case DataString, DataNumber, DataBoolean, DataDate, DataEnum:
		return true
	default:
		return false
	}
}

// Field is a registry entry describing one addressable transaction field.
// Owned by the external field registry; the validator only reads it.
type Field struct {
	Key        string
	DataType   DataType
	Operators  []Operator // allowed subset of the operator set
	MultiValue bool       // whether list-valued operators are permitted
}

// Allows reports whether op is in the field's allowed operator set.
func (f Field) Allows(op Operator) bool {
	for _, allowed := range f.Operators {
		if allowed == op {
			return true
		}
	}
	return false
}

// Registry is the lookup interface the validator consumes.
// The production implementation lives with the external field registry;
// StaticRegistry serves configuration files and tests.
type Registry interface {
	GetField(key string) (Field, bool)
}

// StaticRegistry is an immutable in-memory Registry.
type StaticRegistry map[string]Field

// GetField implements Registry.
func (r StaticRegistry) GetField(key string) (Field, bool) {
	f, ok := r[key]
	return f, ok
}

// NewStaticRegistry builds a StaticRegistry keyed by Field.Key.
func NewStaticRegistry(fields []Field) StaticRegistry {
	r := make(StaticRegistry, len(fields))
	for _, f := range fields {
		r[f.Key] = f
	}
	return r
}
