package handler

import (
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/erp/qbconnector/internal/infrastructure/config"
	"github.com/erp/qbconnector/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const qwcFilename = "app.qwc"

type qwcScheduler struct {
	RunEveryNSeconds int `xml:"RunEveryNSeconds"`
}

// qwcDocument is the descriptor the Web Connector imports to register an application
type qwcDocument struct {
	XMLName        xml.Name     `xml:"QBWCXML"`
	AppName        string       `xml:"AppName"`
	AppID          string       `xml:"AppID"`
	AppURL         string       `xml:"AppURL"`
	AppDescription string       `xml:"AppDescription"`
	AppSupport     string       `xml:"AppSupport"`
	UserName       string       `xml:"UserName"`
	OwnerID        string       `xml:"OwnerID"`
	FileID         string       `xml:"FileID"`
	QBType         string       `xml:"QBType"`
	Style          string       `xml:"Style"`
	Scheduler      qwcScheduler `xml:"Scheduler"`
}

// QWCHandler generates .qwc descriptor files
type QWCHandler struct {
	BaseHandler
	cfg    config.ConnectorConfig
	logger *zap.Logger
}

// NewQWCHandler creates a new QWCHandler
func NewQWCHandler(cfg config.ConnectorConfig, logger *zap.Logger) *QWCHandler {
	return &QWCHandler{cfg: cfg, logger: logger.Named("qwc")}
}

// RegisterRoutes mounts the versioned descriptor route
func (h *QWCHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/qwc", h.Generate)
}

// RegisterLegacyRoutes mounts /generate_qwc
func (h *QWCHandler) RegisterLegacyRoutes(r gin.IRoutes) {
	r.GET("/generate_qwc", h.Generate)
}

// Generate renders a descriptor as an attachment.
// Query: app_name, app_desc and username override the configured values.
func (h *QWCHandler) Generate(c *gin.Context) {
	var req dto.QWCRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}

	appURL := h.cfg.PublicURL
	if appURL == "" {
		appURL = requestBaseURL(c) + "/wsdl"
	}
	support := h.cfg.AppSupportURL
	if support == "" {
		support = appURL
	}

	doc := qwcDocument{
		AppName:        firstNonEmpty(req.AppName, h.cfg.AppName),
		AppURL:         appURL,
		AppDescription: firstNonEmpty(req.AppDesc, h.cfg.AppDescription),
		AppSupport:     support,
		UserName:       firstNonEmpty(req.Username, h.cfg.Username),
		OwnerID:        braced(uuid.New()),
		FileID:         braced(uuid.New()),
		QBType:         "QBFS",
		Style:          "Document",
		Scheduler:      qwcScheduler{RunEveryNSeconds: h.cfg.RunEveryNSeconds},
	}

	body, err := xml.MarshalIndent(doc, "", "   ")
	if err != nil {
		h.logger.Error("Failed to render descriptor", zap.Error(err))
		h.InternalError(c, "Failed to render descriptor")
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+qwcFilename)
	c.Data(http.StatusOK, "text/xml; charset=utf-8", append([]byte(`<?xml version="1.0"?>`+"\n"), body...))
}

func braced(id uuid.UUID) string {
	return "{" + strings.ToUpper(id.String()) + "}"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// requestBaseURL derives scheme://host from the request, honoring X-Forwarded-Proto
func requestBaseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return scheme + "://" + c.Request.Host
}
