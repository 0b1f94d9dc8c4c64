package catalog

import (
	"fmt"
	"strconv"
)

// MissingFieldError reports a required field that is absent or has no text.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s not found", e.Field)
}

// InvalidFieldError reports a required field whose text cannot be converted
// to the expected type.
type InvalidFieldError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *InvalidFieldError) Unwrap() error {
	return e.Err
}

// Field describes how a single value is read from a node.
type Field struct {
	Name     string
	Required bool
	Default  string // returned when an optional field is absent
}

// Required returns a Field that fails with *MissingFieldError when absent.
func Required(name string) Field {
	return Field{Name: name, Required: true}
}

// Optional returns a Field that yields def when absent.
func Optional(name, def string) Field {
	return Field{Name: name, Default: def}
}

// Read returns the text of the first element named f.Name beneath n.
// Text is returned exactly as it appears in the feed.
func (f Field) Read(n *Node) (string, error) {
	text, ok := n.Find(f.Name).Text()
	if ok {
		return text, nil
	}
	if f.Required {
		return "", &MissingFieldError{Field: f.Name}
	}
	return f.Default, nil
}

// Get reads name from n. It is shorthand for building a Field and calling Read.
func Get(n *Node, name string, required bool, def string) (string, error) {
	return Field{Name: name, Required: required, Default: def}.Read(n)
}

// Int reads a required integer field.
func Int(n *Node, name string) (int, error) {
	text, err := Required(name).Read(n)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		return 0, &InvalidFieldError{Field: name, Value: text, Err: err}
	}
	return v, nil
}
