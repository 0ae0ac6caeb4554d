package connector

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/erp/qbconnector/internal/domain/connector"
	"github.com/erp/qbconnector/internal/infrastructure/logger"
	"github.com/erp/qbconnector/internal/infrastructure/qbxml"
	"github.com/erp/qbconnector/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Values returned by the connector calls
const (
	AuthInvalidUser = "nvu"
	AuthBusy        = "busy"

	ProgressComplete = 100
	ProgressFailed   = -1

	CloseConnectionAck   = "OK"
	ConnectionErrorDone  = "done"
	InteractiveDoneAck   = "Done"
	InteractiveRejectAck = "OK"

	DefaultLastError = "Unknown Error"
)

// EngineConfig holds the protocol policy knobs
type EngineConfig struct {
	CompanyFile      string
	MinClientVersion string
	SeedRequest      string
	InteractiveURL   string
	ServerVersion    string
	Envelope         qbxml.Options
	RequeueOnError   bool
	LastErrorTTL     time.Duration // entries older than this are dropped; default 30m
}

type lastError struct {
	message    string
	recordedAt time.Time
}

// ProtocolEngine implements the remote calls made by the accounting client.
// No call returns an error: failures are mapped to the values the client understands.
type ProtocolEngine struct {
	sessions    connector.SessionRegistry
	tasks       connector.TaskStore
	dispatcher  *QueueDispatcher
	credentials Credentials
	config      EngineConfig
	metrics     *telemetry.ConnectorMetrics
	logger      *zap.Logger

	mu         sync.Mutex
	lastErrors map[string]lastError
}

// NewProtocolEngine creates a new ProtocolEngine
func NewProtocolEngine(
	sessions connector.SessionRegistry,
	tasks connector.TaskStore,
	dispatcher *QueueDispatcher,
	credentials Credentials,
	config EngineConfig,
	metrics *telemetry.ConnectorMetrics,
	logger *zap.Logger,
) *ProtocolEngine {
	if config.ServerVersion == "" {
		config.ServerVersion = telemetry.ServiceVersion
	}
	if config.LastErrorTTL <= 0 {
		config.LastErrorTTL = 30 * time.Minute
	}
	return &ProtocolEngine{
		sessions:    sessions,
		tasks:       tasks,
		dispatcher:  dispatcher,
		credentials: credentials,
		config:      config,
		metrics:     metrics,
		logger:      logger.Named("engine"),
		lastErrors:  make(map[string]lastError),
	}
}

// ServerVersion reports the server build to the client
func (e *ProtocolEngine) ServerVersion(ctx context.Context) string {
	return e.config.ServerVersion
}

// ClientVersion accepts any client unless a minimum version is configured.
// An older client gets an "E:" message, which makes the client stop.
func (e *ProtocolEngine) ClientVersion(ctx context.Context, version string) string {
	if e.config.MinClientVersion == "" {
		return ""
	}
	if compareVersions(version, e.config.MinClientVersion) < 0 {
		e.logger.Warn("Rejecting outdated client",
			zap.String("client_version", version),
			zap.String("min_version", e.config.MinClientVersion),
		)
		return "E:This server requires Web Connector version " + e.config.MinClientVersion + " or later."
	}
	return ""
}

// Authenticate opens a session for valid credentials. The result is always
// four strings: ticket, company file or sentinel, and two unused hints.
func (e *ProtocolEngine) Authenticate(ctx context.Context, username, password string) []string {
	ctx, span := telemetry.StartServiceSpan(ctx, "engine", "authenticate",
		telemetry.WithAttribute(telemetry.SpanAttrUsername, username),
	)
	defer span.End()

	if !e.credentials.Verify(username, password) {
		e.metrics.RecordAuthFailure(ctx)
		e.logger.Warn("Authentication failed", zap.String("username", username))
		return []string{"", AuthInvalidUser, "", ""}
	}

	session, err := e.sessions.Open(ctx, username, e.config.CompanyFile)
	if err != nil {
		telemetry.RecordError(span, err)
		e.logger.Error("Failed to open session", zap.String("username", username), zap.Error(err))
		return []string{"", AuthBusy, "", ""}
	}
	e.metrics.RecordSessionOpened(ctx)
	telemetry.SetAttribute(span, telemetry.SpanAttrTicket, session.Ticket)

	e.logger.Info("Session opened",
		zap.String("username", username),
		zap.String("ticket", session.Ticket),
	)

	if e.config.SeedRequest != "" {
		id, err := e.tasks.Enqueue(ctx, username, e.config.SeedRequest)
		if err != nil {
			e.logger.Error("Failed to seed task", zap.String("ticket", session.Ticket), zap.Error(err))
		} else {
			e.logger.Debug("Seeded task", zap.Int64("task_id", id))
		}
	}

	return []string{session.Ticket, session.TargetFile, "", ""}
}

// SendRequestXML returns the next wrapped request for the ticket's user, or
// "" when the session is unusable or the queue is empty.
func (e *ProtocolEngine) SendRequestXML(
	ctx context.Context,
	ticket, hcpResponse, companyFileName, country string,
	majorVersion, minorVersion int,
) string {
	ctx, span := telemetry.StartServiceSpan(ctx, "engine", "send_request_xml",
		telemetry.WithAttribute(telemetry.SpanAttrTicket, ticket),
	)
	defer span.End()

	log := e.callLogger(ctx, ticket)

	if _, err := e.requireActive(ctx, ticket); err != nil {
		log.Info("sendRequestXML on unusable session", zap.Error(err))
		return ""
	}
	if err := e.sessions.Touch(ctx, ticket); err != nil {
		log.Warn("Failed to refresh session activity", zap.Error(err))
	}

	if hcpResponse != "" {
		log.Debug("Client host info received",
			zap.String("company_file", companyFileName),
			zap.String("country", country),
			zap.Int("qbxml_major", majorVersion),
			zap.Int("qbxml_minor", minorVersion),
		)
	}

	task, err := e.dispatcher.ClaimNext(ctx, ticket)
	if err != nil {
		telemetry.RecordError(span, err)
		log.Error("Failed to claim task", zap.Error(err))
		e.setLastError(ticket, err.Error())
		return ""
	}
	if task == nil {
		return ""
	}

	request, err := qbxml.Wrap(task.Request, e.config.Envelope)
	if err != nil {
		// a stored body that cannot be wrapped would fail on every retry
		log.Error("Failed to wrap task request", zap.Int64("task_id", task.ID), zap.Error(err))
		if _, cerr := e.tasks.Complete(ctx, ticket, err.Error(), true); cerr != nil {
			log.Error("Failed to fail unwrappable task", zap.Int64("task_id", task.ID), zap.Error(cerr))
		}
		e.setLastError(ticket, err.Error())
		return ""
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrTaskID, task.ID)
	log.Info("Task sent", zap.Int64("task_id", task.ID), zap.String("username", task.Username))
	return request
}

// ReceiveResponseXML stores the client's reply against the task the ticket
// holds. Returns the progress percentage, or -1 when the reply could not be stored.
func (e *ProtocolEngine) ReceiveResponseXML(ctx context.Context, ticket, response, hresult, message string) int {
	ctx, span := telemetry.StartServiceSpan(ctx, "engine", "receive_response_xml",
		telemetry.WithAttribute(telemetry.SpanAttrTicket, ticket),
	)
	defer span.End()

	log := e.callLogger(ctx, ticket)

	// the reply is still recorded for an unusable session: it belongs to a
	// task this ticket was handed. Error text is kept only for live sessions.
	_, err := e.requireActive(ctx, ticket)
	active := err == nil
	if !active {
		log.Warn("receiveResponseXML on unusable session", zap.Error(err))
	} else if err := e.sessions.Touch(ctx, ticket); err != nil {
		log.Warn("Failed to refresh session activity", zap.Error(err))
	}

	isError := isFailureHResult(hresult)
	if isError {
		telemetry.SetAttribute(span, telemetry.SpanAttrHResult, hresult)
		log.Warn("Client reported request failure",
			zap.String("hresult", hresult),
			zap.String("message", message),
		)
		if active {
			e.setLastError(ticket, message)
		}
	}

	task, err := e.tasks.Complete(ctx, ticket, response, isError)
	if err != nil {
		telemetry.RecordError(span, err)
		log.Error("Failed to store response", zap.Error(err))
		if active {
			e.setLastError(ticket, err.Error())
		}
		return ProgressFailed
	}
	if task == nil {
		log.Warn("Discarding response with no matching sent task", zap.Int("response_bytes", len(response)))
		return ProgressComplete
	}

	e.logResponseStatus(log, task, response)
	e.metrics.RecordTaskCompleted(ctx, task.Status, time.Since(task.CreatedAt))
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTaskID, task.ID,
		telemetry.SpanAttrTaskStatus, task.Status.String(),
	)
	return ProgressComplete
}

func (e *ProtocolEngine) logResponseStatus(log *zap.Logger, task *connector.Task, response string) {
	status, err := qbxml.ParseResponseStatus(response)
	if err != nil {
		log.Debug("Response is not parseable qbXML", zap.Int64("task_id", task.ID), zap.Error(err))
	}

	fields := []zap.Field{
		zap.Int64("task_id", task.ID),
		zap.String("status", task.Status.String()),
	}
	if status != nil {
		fields = append(fields,
			zap.String("response_tag", status.Tag),
			zap.String("status_code", status.StatusCode),
			zap.String("status_severity", status.StatusSeverity),
		)
		if status.IsError() {
			log.Warn("Task completed with qbXML error status", append(fields, zap.String("status_message", status.StatusMessage))...)
			return
		}
	}
	log.Info("Task completed", fields...)
}

// ConnectionError closes the session after the client failed to reach the
// company file. Sent tasks stay sent unless requeue-on-error is enabled.
func (e *ProtocolEngine) ConnectionError(ctx context.Context, ticket, hresult, message string) string {
	ctx, span := telemetry.StartServiceSpan(ctx, "engine", "connection_error",
		telemetry.WithAttribute(telemetry.SpanAttrTicket, ticket),
		telemetry.WithAttribute(telemetry.SpanAttrHResult, hresult),
	)
	defer span.End()

	log := e.callLogger(ctx, ticket)
	log.Warn("Client connection error", zap.String("hresult", hresult), zap.String("message", message))

	if err := e.closeSession(ctx, ticket, telemetry.CloseReasonConnectionError); err != nil {
		telemetry.RecordError(span, err)
		log.Error("Failed to close session", zap.Error(err))
	}

	if e.config.RequeueOnError {
		n, err := e.tasks.RequeueSent(ctx, ticket)
		if err != nil {
			telemetry.RecordError(span, err)
			log.Error("Failed to requeue sent tasks", zap.Error(err))
		} else if n > 0 {
			e.metrics.RecordTasksRequeued(ctx, n)
			log.Info("Requeued sent tasks", zap.Int64("count", n))
		}
	}

	return ConnectionErrorDone
}

// GetLastError returns the last error recorded for the ticket
func (e *ProtocolEngine) GetLastError(ctx context.Context, ticket string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.lastErrors[ticket]; ok && entry.message != "" &&
		time.Since(entry.recordedAt) < e.config.LastErrorTTL {
		return entry.message
	}
	return DefaultLastError
}

// CloseConnection ends the session. Safe to call repeatedly.
func (e *ProtocolEngine) CloseConnection(ctx context.Context, ticket string) string {
	ctx, span := telemetry.StartServiceSpan(ctx, "engine", "close_connection",
		telemetry.WithAttribute(telemetry.SpanAttrTicket, ticket),
	)
	defer span.End()

	if err := e.closeSession(ctx, ticket, telemetry.CloseReasonClient); err != nil {
		telemetry.RecordError(span, err)
		e.logger.Error("Failed to close session", zap.String("ticket", ticket), zap.Error(err))
	}
	return CloseConnectionAck
}

// GetInteractiveURL starts the interactive handshake for an active session
func (e *ProtocolEngine) GetInteractiveURL(ctx context.Context, ticket, sessionID string) string {
	if _, err := e.requireActive(ctx, ticket); err != nil {
		e.logger.Info("getInteractiveURL on unusable session", zap.String("ticket", ticket), zap.Error(err))
		return ""
	}
	if err := e.sessions.SetInteractive(ctx, ticket, e.config.InteractiveURL, connector.InteractiveStatusPending); err != nil {
		e.logger.Error("Failed to record interactive session", zap.String("ticket", ticket), zap.Error(err))
	}
	e.logger.Info("Interactive mode requested",
		zap.String("ticket", ticket),
		zap.String("client_session_id", sessionID),
	)
	return e.config.InteractiveURL
}

// InteractiveDone marks the interactive handshake finished
func (e *ProtocolEngine) InteractiveDone(ctx context.Context, ticket string) string {
	if err := e.sessions.SetInteractive(ctx, ticket, e.config.InteractiveURL, connector.InteractiveStatusDone); err != nil {
		e.logger.Error("Failed to record interactive completion", zap.String("ticket", ticket), zap.Error(err))
	}
	return InteractiveDoneAck
}

// InteractiveRejected records that the user declined interactive mode
func (e *ProtocolEngine) InteractiveRejected(ctx context.Context, ticket, reason string) string {
	e.logger.Info("Interactive mode rejected", zap.String("ticket", ticket), zap.String("reason", reason))
	if err := e.sessions.SetInteractive(ctx, ticket, e.config.InteractiveURL, connector.InteractiveStatusRejected); err != nil {
		e.logger.Error("Failed to record interactive rejection", zap.String("ticket", ticket), zap.Error(err))
	}
	return InteractiveRejectAck
}

// callLogger carries the trace and request ids of ctx
func (e *ProtocolEngine) callLogger(ctx context.Context, ticket string) *zap.Logger {
	log := logger.ForContext(ctx, e.logger)
	if logger.GetTicket(ctx) == "" {
		log = log.With(zap.String("ticket", ticket))
	}
	return log
}

// requireActive resolves a ticket to a usable session
func (e *ProtocolEngine) requireActive(ctx context.Context, ticket string) (*connector.Session, error) {
	session, err := e.sessions.Get(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if !session.IsUsable() {
		return nil, connector.ErrSessionClosed
	}
	return session, nil
}

func (e *ProtocolEngine) closeSession(ctx context.Context, ticket, reason string) error {
	session, err := e.sessions.Get(ctx, ticket)
	if errors.Is(err, connector.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	e.forgetLastError(ticket)
	if !session.IsUsable() {
		return nil
	}
	if err := e.sessions.Close(ctx, ticket); err != nil {
		return err
	}
	e.metrics.RecordSessionClosed(ctx, reason)
	e.logger.Info("Session closed", zap.String("ticket", ticket), zap.String("reason", reason))
	return nil
}

// setLastError must only be called for tickets that resolved to an active
// session. Expired entries are pruned on every write.
func (e *ProtocolEngine) setLastError(ticket, msg string) {
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	for t, entry := range e.lastErrors {
		if now.Sub(entry.recordedAt) >= e.config.LastErrorTTL {
			delete(e.lastErrors, t)
		}
	}
	e.lastErrors[ticket] = lastError{message: msg, recordedAt: now}
}

func (e *ProtocolEngine) forgetLastError(ticket string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.lastErrors, ticket)
}

// isFailureHResult reports whether the client's result code signals a failed
// request. Blank and zero codes ("0", "0x0") mean success; anything that is
// not a number is treated as a failure.
func isFailureHResult(hresult string) bool {
	s := strings.TrimSpace(hresult)
	if s == "" {
		return false
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return true
	}
	return v != 0
}

// compareVersions compares dotted numeric versions; missing or non-numeric
// segments count as zero.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := segment(as, i), segment(bs, i)
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func segment(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
	if err != nil {
		return 0
	}
	return v
}
