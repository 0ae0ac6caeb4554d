package soap

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/erp/qbconnector/internal/infrastructure/logger"
	"github.com/erp/qbconnector/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// ActionKey is the gin context key holding the dispatched operation name
	ActionKey = "soap_action"

	contentType = "text/xml; charset=utf-8"
	wsdlPath    = "/wsdl"
)

// Handler serves the Web Connector endpoint
type Handler struct {
	service   ConnectorService
	publicURL string
	logger    *zap.Logger
}

// NewHandler creates a new Handler. publicURL, when set, is advertised in the WSDL
// instead of the address derived from the request.
func NewHandler(service ConnectorService, publicURL string, logger *zap.Logger) *Handler {
	return &Handler{
		service:   service,
		publicURL: publicURL,
		logger:    logger.Named("soap"),
	}
}

// Register mounts the endpoint on r
func (h *Handler) Register(r gin.IRoutes) {
	r.GET(wsdlPath, h.WSDL)
	r.POST(wsdlPath, h.Handle)
	r.POST("/qbwc", h.Handle)
}

// WSDL serves the service description
func (h *Handler) WSDL(c *gin.Context) {
	var buf bytes.Buffer
	if err := WriteWSDL(&buf, h.endpointURL(c)); err != nil {
		h.logger.Error("Failed to render WSDL", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// Handle decodes one SOAP call, dispatches it and writes the response envelope
func (h *Handler) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	log := h.requestLogger(c)

	req, err := DecodeRequest(c.Request.Body)
	if err != nil {
		log.Warn("Rejecting SOAP request", zap.Error(err))
		h.fault(c, FaultClient, faultMessage(err))
		return
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(telemetry.AttrSOAPAction.String(req.Operation))

	op, ok := lookupOperation(req.Operation)
	if !ok {
		log.Warn("Unknown SOAP operation", zap.String("operation", req.Operation))
		h.fault(c, FaultClient, "Unknown operation: "+req.Operation)
		return
	}
	c.Set(ActionKey, op.Name)

	if op.TicketParam != "" {
		if ticket := req.String(op.TicketParam); ticket != "" {
			ctx, log = logger.WithTicket(ctx, log, ticket)
			span.SetAttributes(attribute.String(telemetry.SpanAttrTicket, ticket))
		}
	}

	result, err := op.call(ctx, h.service, req, log)
	if err != nil {
		log.Warn("Invalid SOAP parameters", zap.String("operation", op.Name), zap.Error(err))
		h.fault(c, FaultClient, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := EncodeResponse(&buf, op.Name, result); err != nil {
		log.Error("Failed to encode SOAP response", zap.String("operation", op.Name), zap.Error(err))
		h.fault(c, FaultServer, "Failed to encode response")
		return
	}
	log.Debug("SOAP call handled", zap.String("operation", op.Name))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (h *Handler) requestLogger(c *gin.Context) *zap.Logger {
	if _, ok := c.Get("logger"); ok {
		return logger.GetGinLogger(c).Named("soap")
	}
	return h.logger
}

func (h *Handler) fault(c *gin.Context, code, message string) {
	var buf bytes.Buffer
	if err := EncodeFault(&buf, code, message); err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusInternalServerError, contentType, buf.Bytes())
}

func (h *Handler) endpointURL(c *gin.Context) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return scheme + "://" + c.Request.Host + wsdlPath
}

func faultMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmptyBody):
		return "SOAP body contains no operation"
	case errors.Is(err, ErrMalformedEnvelope):
		return "Malformed SOAP envelope"
	default:
		return err.Error()
	}
}
