package soap

import (
	"context"

	"go.uber.org/zap"
)

// ConnectorService is the set of calls the Web Connector makes
type ConnectorService interface {
	ServerVersion(ctx context.Context) string
	ClientVersion(ctx context.Context, version string) string
	Authenticate(ctx context.Context, username, password string) []string
	SendRequestXML(ctx context.Context, ticket, hcpResponse, companyFileName, country string, majorVersion, minorVersion int) string
	ReceiveResponseXML(ctx context.Context, ticket, response, hresult, message string) int
	ConnectionError(ctx context.Context, ticket, hresult, message string) string
	GetLastError(ctx context.Context, ticket string) string
	CloseConnection(ctx context.Context, ticket string) string
	GetInteractiveURL(ctx context.Context, ticket, sessionID string) string
	InteractiveDone(ctx context.Context, ticket string) string
	InteractiveRejected(ctx context.Context, ticket, reason string) string
}

type xsdType string

const (
	xsdString      xsdType = "s:string"
	xsdInt         xsdType = "s:int"
	xsdStringArray xsdType = "tns:ArrayOfString"
)

type param struct {
	Name string
	Type xsdType
}

type operation struct {
	Name   string
	Params []param
	Result xsdType
	// TicketParam names the parameter carrying the session ticket, if any
	TicketParam string
	call        func(ctx context.Context, svc ConnectorService, req *Request, log *zap.Logger) (Result, error)
}

func stringParams(names ...string) []param {
	params := make([]param, len(names))
	for i, n := range names {
		params[i] = param{Name: n, Type: xsdString}
	}
	return params
}

// operations lists the calls in WSDL order. Parameter order matters to the client.
var operations = []operation{
	{
		Name:   "serverVersion",
		Result: xsdString,
		call: func(ctx context.Context, svc ConnectorService, _ *Request, _ *zap.Logger) (Result, error) {
			return StringResult(svc.ServerVersion(ctx)), nil
		},
	},
	{
		Name:   "clientVersion",
		Params: stringParams("strVersion"),
		Result: xsdString,
		call: func(ctx context.Context, svc ConnectorService, req *Request, _ *zap.Logger) (Result, error) {
			return StringResult(svc.ClientVersion(ctx, req.String("strVersion"))), nil
		},
	},
	{
		Name:   "authenticate",
		Params: stringParams("strUserName", "strPassword"),
		Result: xsdStringArray,
		call: func(ctx context.Context, svc ConnectorService, req *Request, _ *zap.Logger) (Result, error) {
			return ArrayResult(svc.Authenticate(ctx, req.String("strUserName"), req.String("strPassword"))), nil
		},
	},
	{
		Name: "sendRequestXML",
		Params: append(
			stringParams("ticket", "strHCPResponse", "strCompanyFileName", "qbXMLCountry"),
			param{Name: "qbXMLMajorVers", Type: xsdInt},
			param{Name: "qbXMLMinorVers", Type: xsdInt},
		),
		Result:      xsdString,
		TicketParam: "ticket",
		call: func(ctx context.Context, svc ConnectorService, req *Request, log *zap.Logger) (Result, error) {
			major := versionParam(req, "qbXMLMajorVers", log)
			minor := versionParam(req, "qbXMLMinorVers", log)
			return StringResult(svc.SendRequestXML(ctx,
				req.String("ticket"),
				req.String("strHCPResponse"),
				req.String("strCompanyFileName"),
				req.String("qbXMLCountry"),
				major, minor,
			)), nil
		},
	},
	{
		Name:        "receiveResponseXML",
		Params:      stringParams("ticket", "response", "hresult", "message"),
		Result:      xsdInt,
		TicketParam: "ticket",
		call: func(ctx context.Context, svc ConnectorService, req *Request, _ *zap.Logger) (Result, error) {
			return IntResult(svc.ReceiveResponseXML(ctx,
				req.String("ticket"),
				req.String("response"),
				req.String("hresult"),
				req.String("message"),
			)), nil
		},
	},
	{
		Name:        "connectionError",
		Params:      stringParams("ticket", "hresult", "message"),
		Result:      xsdString,
		TicketParam: "ticket",
		call: func(ctx context.Context, svc ConnectorService, req *Request, _ *zap.Logger) (Result, error) {
			return StringResult(svc.ConnectionError(ctx,
				req.String("ticket"),
				req.String("hresult"),
				req.String("message"),
			)), nil
		},
	},
	{
		Name:        "getLastError",
		Params:      stringParams("ticket"),
		Result:      xsdString,
		TicketParam: "ticket",
		call: func(ctx context.Context, svc ConnectorService, req *Request, _ *zap.Logger) (Result, error) {
			return StringResult(svc.GetLastError(ctx, req.String("ticket"))), nil
		},
	},
	{
		Name:        "closeConnection",
		Params:      stringParams("ticket"),
		Result:      xsdString,
		TicketParam: "ticket",
		call: func(ctx context.Context, svc ConnectorService, req *Request, _ *zap.Logger) (Result, error) {
			return StringResult(svc.CloseConnection(ctx, req.String("ticket"))), nil
		},
	},
	{
		Name:        "getInteractiveURL",
		Params:      stringParams("wcTicket", "sessionID"),
		Result:      xsdString,
		TicketParam: "wcTicket",
		call: func(ctx context.Context, svc ConnectorService, req *Request, _ *zap.Logger) (Result, error) {
			return StringResult(svc.GetInteractiveURL(ctx, req.String("wcTicket"), req.String("sessionID"))), nil
		},
	},
	{
		Name:        "interactiveDone",
		Params:      stringParams("wcTicket"),
		Result:      xsdString,
		TicketParam: "wcTicket",
		call: func(ctx context.Context, svc ConnectorService, req *Request, _ *zap.Logger) (Result, error) {
			return StringResult(svc.InteractiveDone(ctx, req.String("wcTicket"))), nil
		},
	},
	{
		Name:        "interactiveRejected",
		Params:      stringParams("wcTicket", "reason"),
		Result:      xsdString,
		TicketParam: "wcTicket",
		call: func(ctx context.Context, svc ConnectorService, req *Request, _ *zap.Logger) (Result, error) {
			return StringResult(svc.InteractiveRejected(ctx, req.String("wcTicket"), req.String("reason"))), nil
		},
	},
}

var operationIndex = func() map[string]*operation {
	idx := make(map[string]*operation, len(operations))
	for i := range operations {
		idx[operations[i].Name] = &operations[i]
	}
	return idx
}()

func lookupOperation(name string) (*operation, bool) {
	op, ok := operationIndex[name]
	return op, ok
}

// versionParam reads a qbXML version number. Unparseable values are logged
// and read as 0 so the call is still served.
func versionParam(req *Request, name string, log *zap.Logger) int {
	n, err := req.Int(name)
	if err != nil {
		log.Warn("Ignoring invalid qbXML version", zap.String("param", name), zap.Error(err))
		return 0
	}
	return n
}
