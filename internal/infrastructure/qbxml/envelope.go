// Package qbxml builds and inspects qbXML documents exchanged with the
// accounting client. Request bodies are opaque to the queue; this package only
// checks that they are well-formed and wraps them in the message envelope.
package qbxml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// DefaultVersion is the qbXML spec version advertised in the envelope
	DefaultVersion = "13.0"
	// OnErrorStop aborts the remaining requests in a message set on the first error
	OnErrorStop = "stopOnError"
	// OnErrorContinue keeps processing after an error
	OnErrorContinue = "continueOnError"
)

var (
	// ErrEmptyFragment is returned when a body contains no element
	ErrEmptyFragment = errors.New("qbxml: fragment has no element")
	// ErrMalformed is returned when a body is not well-formed XML
	ErrMalformed = errors.New("qbxml: malformed xml")
)

// Options controls envelope rendering
type Options struct {
	Version string
	OnError string
}

// DefaultOptions returns the envelope options used by the desktop client
func DefaultOptions() Options {
	return Options{Version: DefaultVersion, OnError: OnErrorStop}
}

// Wrap places a request fragment inside the QBXML/QBXMLMsgsRq envelope.
// A body that already carries its own QBXML root is returned with only the
// prolog added when missing.
func Wrap(body string, opts Options) (string, error) {
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.OnError == "" {
		opts.OnError = OnErrorStop
	}

	trimmed := strings.TrimSpace(body)
	if IsEnvelope(trimmed) {
		if err := Validate(trimmed); err != nil {
			return "", err
		}
		if strings.HasPrefix(trimmed, "<?xml") {
			return trimmed, nil
		}
		return prolog(opts.Version) + trimmed, nil
	}

	if err := ValidateFragment(trimmed); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(prolog(opts.Version))
	b.WriteString(`<QBXML><QBXMLMsgsRq onError="`)
	_ = xml.EscapeText(&b, []byte(opts.OnError))
	b.WriteString(`">`)
	b.WriteString(trimmed)
	b.WriteString(`</QBXMLMsgsRq></QBXML>`)
	return b.String(), nil
}

func prolog(version string) string {
	return "<?xml version=\"1.0\" encoding=\"utf-8\"?>\n<?qbxml version=\"" + version + "\"?>\n"
}

// IsEnvelope reports whether body is already a complete QBXML document
func IsEnvelope(body string) bool {
	dec := xml.NewDecoder(strings.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local == "QBXML"
		}
	}
}

// ValidateFragment checks that body is a sequence of well-formed elements
// with at least one top-level element and no XML declaration. The body is
// tokenized as-is so that it cannot close or reopen an enclosing element.
func ValidateFragment(body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyFragment
	}

	roots, err := scan(body, false)
	if err != nil {
		return err
	}
	if roots == 0 {
		return ErrEmptyFragment
	}
	return nil
}

// Validate accepts either a request fragment or a complete QBXML document.
// A document must have exactly one root element.
func Validate(body string) error {
	trimmed := strings.TrimSpace(body)
	if !IsEnvelope(trimmed) {
		return ValidateFragment(trimmed)
	}

	roots, err := scan(trimmed, true)
	if err != nil {
		return err
	}
	if roots != 1 {
		return fmt.Errorf("%w: document has %d root elements", ErrMalformed, roots)
	}
	return nil
}

// scan walks every token of body and returns the number of top-level
// elements. Text, directives and unmatched end tags at the top level are
// rejected; processing instructions are allowed only before the first
// element of a document.
func scan(body string, document bool) (int, error) {
	dec := xml.NewDecoder(strings.NewReader(body))
	depth := 0
	roots := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
			}
			depth++
		case xml.EndElement:
			if depth == 0 {
				return 0, fmt.Errorf("%w: unexpected </%s>", ErrMalformed, t.Name.Local)
			}
			depth--
		case xml.ProcInst:
			if !document || depth > 0 || roots > 0 {
				return 0, fmt.Errorf("%w: processing instruction <?%s?> not allowed here", ErrMalformed, t.Target)
			}
		case xml.Directive:
			if depth == 0 {
				return 0, fmt.Errorf("%w: directive not allowed in a request", ErrMalformed)
			}
		case xml.CharData:
			if depth == 0 && strings.TrimSpace(string(t)) != "" {
				return 0, fmt.Errorf("%w: text outside of an element", ErrMalformed)
			}
		}
	}
	if depth != 0 {
		return 0, fmt.Errorf("%w: %d unclosed element(s)", ErrMalformed, depth)
	}
	return roots, nil
}
