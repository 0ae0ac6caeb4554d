// Package soap implements the SOAP 1.1 document/literal transport spoken by
// the QuickBooks Web Connector.
package soap

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// EnvelopeNS is the SOAP 1.1 envelope namespace
	EnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	// ServiceNS is the target namespace of every Web Connector operation
	ServiceNS = "http://developer.intuit.com/"

	// FaultClient marks faults caused by the caller
	FaultClient = "soap:Client"
	// FaultServer marks faults raised by the server
	FaultServer = "soap:Server"
)

var (
	// ErrMalformedEnvelope is returned when the body is not a SOAP envelope
	ErrMalformedEnvelope = errors.New("soap: malformed envelope")
	// ErrEmptyBody is returned when the envelope carries no operation
	ErrEmptyBody = errors.New("soap: empty body")
)

// Request is a decoded operation call
type Request struct {
	Operation string
	Params    map[string]string
}

// String returns the named parameter, "" when absent
func (r *Request) String(name string) string {
	return r.Params[name]
}

// Int returns the named parameter as an int. Absent or blank values are 0.
func (r *Request) Int(name string) (int, error) {
	raw := strings.TrimSpace(r.Params[name])
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %q is not an integer", name, raw)
	}
	return n, nil
}

type requestEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Operations []operationElement `xml:",any"`
	} `xml:"Body"`
}

type operationElement struct {
	XMLName xml.Name
	Params  []paramElement `xml:",any"`
}

type paramElement struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// DecodeRequest reads a SOAP envelope and returns the first operation in its body.
// Parameters are keyed by local name; namespaces are ignored.
func DecodeRequest(r io.Reader) (*Request, error) {
	var env requestEnvelope
	if err := xml.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.XMLName.Space != "" && env.XMLName.Space != EnvelopeNS {
		return nil, fmt.Errorf("%w: unexpected namespace %s", ErrMalformedEnvelope, env.XMLName.Space)
	}
	if len(env.Body.Operations) == 0 {
		return nil, ErrEmptyBody
	}

	op := env.Body.Operations[0]
	req := &Request{
		Operation: op.XMLName.Local,
		Params:    make(map[string]string, len(op.Params)),
	}
	for _, p := range op.Params {
		req.Params[p.XMLName.Local] = p.Value
	}
	return req, nil
}

// Result is the value an operation returns
type Result struct {
	value string
	items []string
	array bool
}

// StringResult wraps a string return value
func StringResult(s string) Result {
	return Result{value: s}
}

// IntResult wraps an int return value
func IntResult(n int) Result {
	return Result{value: strconv.Itoa(n)}
}

// ArrayResult wraps a string array return value
func ArrayResult(items []string) Result {
	return Result{items: items, array: true}
}

type responseEnvelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	SoapNS  string   `xml:"xmlns:soap,attr"`
	XSINS   string   `xml:"xmlns:xsi,attr"`
	XSDNS   string   `xml:"xmlns:xsd,attr"`
	Body    responseBody
}

type responseBody struct {
	XMLName xml.Name `xml:"soap:Body"`
	Content any
}

type operationResponse struct {
	XMLName xml.Name
	Result  resultElement
}

type resultElement struct {
	XMLName xml.Name
	Value   string   `xml:",chardata"`
	Items   []string `xml:"string"`
}

type faultElement struct {
	XMLName xml.Name `xml:"soap:Fault"`
	Code    string   `xml:"faultcode"`
	String  string   `xml:"faultstring"`
}

func newEnvelope(content any) responseEnvelope {
	return responseEnvelope{
		SoapNS: EnvelopeNS,
		XSINS:  "http://www.w3.org/2001/XMLSchema-instance",
		XSDNS:  "http://www.w3.org/2001/XMLSchema",
		Body:   responseBody{Content: content},
	}
}

// EncodeResponse writes the <op>Response envelope carrying result as <op>Result
func EncodeResponse(w io.Writer, operation string, result Result) error {
	res := resultElement{XMLName: xml.Name{Local: operation + "Result"}}
	if result.array {
		res.Items = result.items
	} else {
		res.Value = result.value
	}
	return encode(w, newEnvelope(operationResponse{
		XMLName: xml.Name{Space: ServiceNS, Local: operation + "Response"},
		Result:  res,
	}))
}

// EncodeFault writes a SOAP fault envelope
func EncodeFault(w io.Writer, code, message string) error {
	return encode(w, newEnvelope(faultElement{Code: code, String: message}))
}

func encode(w io.Writer, env responseEnvelope) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	return xml.NewEncoder(w).Encode(env)
}
