package qbxml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Severity values reported by the accounting client
const (
	SeverityInfo  = "Info"
	SeverityWarn  = "Warn"
	SeverityError = "Error"
)

// ResponseStatus is the status carried by the first response in a QBXMLMsgsRs set
type ResponseStatus struct {
	Tag            string
	RequestID      string
	StatusCode     string
	StatusSeverity string
	StatusMessage  string
}

// IsError reports whether the client rejected the request
func (s *ResponseStatus) IsError() bool {
	return s != nil && s.StatusSeverity == SeverityError
}

// ParseResponseStatus reads the status attributes of the first child of
// QBXML/QBXMLMsgsRs. It returns nil, nil when the document has no response set.
func ParseResponseStatus(response string) (*ResponseStatus, error) {
	dec := xml.NewDecoder(strings.NewReader(response))
	var path []string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if len(path) == 2 && path[0] == "QBXML" && path[1] == "QBXMLMsgsRs" {
				status := &ResponseStatus{Tag: t.Name.Local}
				for _, attr := range t.Attr {
					switch attr.Name.Local {
					case "requestID":
						status.RequestID = attr.Value
					case "statusCode":
						status.StatusCode = attr.Value
					case "statusSeverity":
						status.StatusSeverity = attr.Value
					case "statusMessage":
						status.StatusMessage = attr.Value
					}
				}
				return status, nil
			}
			path = append(path, t.Name.Local)
		case xml.EndElement:
			if len(path) > 0 {
				path = path[:len(path)-1]
			}
		}
	}
}
