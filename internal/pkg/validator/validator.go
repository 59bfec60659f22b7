package validator

// Validator checks a struct against its validation rules and returns a
// translated error describing the first set of failures.
type Validator interface {
	Validate(data any) error
}
