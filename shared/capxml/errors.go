package capxml

import "fmt"

// SyntaxError wraps a document that is not well-formed XML.
type SyntaxError struct {
	Err error
}

func (e *SyntaxError) Error() string { return fmt.Sprintf("malformed cap document: %s", e.Err) }
func (e *SyntaxError) Unwrap() error { return e.Err }

// MissingFieldError is returned by RequiredText when a mandatory element is
// absent or empty.
type MissingFieldError struct {
	Path string
}

func (e *MissingFieldError) Error() string { return fmt.Sprintf("missing required field %s", e.Path) }

type MalformedNumberError struct {
	Path string
	Text string
}

func (e *MalformedNumberError) Error() string {
	return fmt.Sprintf("malformed number in %s: %q", e.Path, e.Text)
}

// TokenizeError reports an unterminated quoted token. Offset is the byte
// position of the opening quote.
type TokenizeError struct {
	Text   string
	Offset int
}

func (e *TokenizeError) Error() string {
	return fmt.Sprintf("unterminated quote at offset %d in %q", e.Offset, e.Text)
}
