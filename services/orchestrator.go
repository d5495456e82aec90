package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sudharshan-ks/dev-postmark-challenge/config"
	"github.com/sudharshan-ks/dev-postmark-challenge/models"
	"github.com/sudharshan-ks/dev-postmark-challenge/utils"
)

// Pipeline outcome statuses
const (
	StatusOK                = "ok"
	StatusTranslationFailed = "translation_failed"
	StatusQueryFailed       = "query_failed"
	StatusReplyFailed       = "reply_failed"
)

// Attachment names used in replies
const (
	ChartAttachmentName    = "result.png"
	WorkbookAttachmentName = "result.xlsx"
)

const previewRows = 10

// ErrDuplicate is returned when an inbound message was already handled
var ErrDuplicate = errors.New("message already processed")

// InboundEmail is a question received by email
type InboundEmail struct {
	From      string
	FromName  string
	Subject   string
	Question  string
	MessageID string
}

// Outcome summarises what the pipeline did with one email
type Outcome struct {
	Status    string    `json:"status"`
	SQL       string    `json:"sql,omitempty"`
	Rows      int64     `json:"rows"`
	Truncated bool      `json:"truncated,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Chart     string    `json:"chart,omitempty"`
	ChartURL  string    `json:"chart_url,omitempty"`
	Replied   bool      `json:"replied"`
}

// OrchestratorDeps are the collaborators of an Orchestrator.
// Archive and Dedup are optional.
type OrchestratorDeps struct {
	Translator     Translator
	Executor       QueryExecutor
	Visualizer     Visualizer
	Messenger      Messenger
	Archive        ChartArchive
	Dedup          Deduplicator
	AttachWorkbook bool
}

// Orchestrator turns one inbound email into one reply
type Orchestrator struct {
	deps   OrchestratorDeps
	schema string
	now    func() time.Time
	newID  func() string
	logger *logrus.Logger
}

var orchestratorInstance *Orchestrator

// NewOrchestrator wires an orchestrator from deps
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		schema: models.SchemaDDL,
		now:    time.Now,
		newID:  func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:12] },
		logger: config.GetLogger(),
	}
}

// InitOrchestrator sets the global orchestrator
func InitOrchestrator(deps OrchestratorDeps) *Orchestrator {
	orchestratorInstance = NewOrchestrator(deps)
	return orchestratorInstance
}

// GetOrchestrator returns the global orchestrator
func GetOrchestrator() *Orchestrator {
	return orchestratorInstance
}

// SetOrchestrator sets the global orchestrator (primarily for testing)
func SetOrchestrator(o *Orchestrator) {
	orchestratorInstance = o
}

// Handle runs the pipeline for email and replies to its sender.
// Translation and query failures are reported to the sender and in the
// Outcome, not as an error; the only errors are ErrDuplicate and a context
// cancelled before any work started.
func (o *Orchestrator) Handle(ctx context.Context, email InboundEmail) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := o.logger.WithFields(logrus.Fields{
		"message_id": email.MessageID,
		"from":       email.From,
	})

	if email.MessageID != "" && o.deps.Dedup != nil {
		first, err := o.deps.Dedup.Claim(ctx, email.MessageID)
		if err != nil {
			log.WithError(err).Warn("Could not check for duplicate delivery, processing anyway")
		} else if !first {
			log.Info("Ignoring duplicate delivery")
			return nil, ErrDuplicate
		}
	}

	log.WithField("question", email.Question).Info("Handling inbound question")
	outcome := &Outcome{Status: StatusOK}

	var msg OutboundMessage
	sql, err := o.deps.Translator.Translate(ctx, email.Question, o.schema)
	if err != nil {
		outcome.Status = StatusTranslationFailed
		outcome.ErrorKind = kindOrDefault(err, KindTranslationFailure)
		log.WithError(err).Warn("Translation failed")
		msg = o.failureReply(email, "", err)
	} else {
		outcome.SQL = sql
		result, err := o.deps.Executor.Execute(ctx, sql)
		if err != nil {
			outcome.Status = StatusQueryFailed
			outcome.ErrorKind = kindOrDefault(err, KindStoreFailure)
			log.WithError(err).WithField("sql", sql).Warn("Query failed")
			msg = o.failureReply(email, sql, err)
		} else {
			outcome.Rows = result.RowCount()
			outcome.Truncated = result.Truncated
			msg = o.successReply(ctx, log, email, result, outcome)
		}
	}

	if err := o.deps.Messenger.Send(ctx, msg); err != nil {
		config.LogError(o.logger, "services", "Orchestrator.Handle", "send reply", email.MessageID, err)
		if outcome.Status == StatusOK {
			outcome.Status = StatusReplyFailed
			outcome.ErrorKind = KindMessengerFailure
		}
		if email.MessageID != "" && o.deps.Dedup != nil {
			if relErr := o.deps.Dedup.Release(context.WithoutCancel(ctx), email.MessageID); relErr != nil {
				log.WithError(relErr).Warn("Could not release message id")
			}
		}
		return outcome, nil
	}
	outcome.Replied = true

	log.WithFields(logrus.Fields{
		"status": outcome.Status,
		"rows":   outcome.Rows,
	}).Info("Replied to inbound question")
	return outcome, nil
}

func (o *Orchestrator) successReply(ctx context.Context, log *logrus.Entry, email InboundEmail, result *QueryResult, outcome *Outcome) OutboundMessage {
	msg := o.reply(email)

	var chart []byte
	if png, err := o.deps.Visualizer.Render(ctx, email.Question, result); err != nil {
		log.WithError(err).Info("No chart for this result, replying with text only")
	} else {
		chart = png
		outcome.Chart = chartKindOf(o.deps.Visualizer, result)
		if o.deps.Archive != nil {
			filename := utils.ChartFilename(o.now(), o.newID())
			url, err := o.deps.Archive.Store(ctx, filename, png)
			if err != nil {
				log.WithError(err).Warn("Could not archive chart")
			} else {
				outcome.ChartURL = url
			}
		}
	}

	var workbook []byte
	if o.deps.AttachWorkbook && len(result.Columns) > 0 {
		data, err := BuildWorkbook(result)
		if err != nil {
			log.WithError(err).Warn("Could not build result workbook")
		} else {
			workbook = data
		}
	}
	if workbook != nil && utils.ValidateAttachmentSizes(len(chart), len(workbook)) != nil {
		log.WithField("bytes", len(workbook)).Warn("Result workbook too large to attach")
		workbook = nil
	}

	if chart != nil {
		msg.Attachments = append(msg.Attachments, Attachment{Name: ChartAttachmentName, ContentType: "image/png", Content: chart})
	}
	if workbook != nil {
		msg.Attachments = append(msg.Attachments, Attachment{Name: WorkbookAttachmentName, ContentType: WorkbookContentType, Content: workbook})
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Your query: %s\n\nSQL: %s\n\n", email.Question, result.SQL)
	switch {
	case result.Mutation && len(result.Columns) == 0:
		fmt.Fprintf(&body, "Result: %d rows affected.", result.RowsAffected)
	case result.Truncated:
		fmt.Fprintf(&body, "Result: more than %d rows, only the first %d are included.", len(result.Records), len(result.Records))
	default:
		fmt.Fprintf(&body, "Result: %d rows.", result.RowCount())
	}
	if outcome.Chart != "" {
		fmt.Fprintf(&body, " See attached %s visualization.", outcome.Chart)
	}
	if outcome.ChartURL != "" && !strings.HasPrefix(outcome.ChartURL, "/") {
		fmt.Fprintf(&body, "\n\nChart: %s", outcome.ChartURL)
	}
	if chart == nil && len(result.Records) > 0 {
		body.WriteString("\n\n")
		body.WriteString(textPreview(result, previewRows))
	}
	if workbook != nil {
		body.WriteString("\n\nThe full result is attached as a spreadsheet.")
	}
	msg.Body = body.String()
	return msg
}

func (o *Orchestrator) failureReply(email InboundEmail, sql string, err error) OutboundMessage {
	msg := o.reply(email)

	var body strings.Builder
	fmt.Fprintf(&body, "Your query: %s\n\n", email.Question)
	if sql != "" {
		fmt.Fprintf(&body, "SQL: %s\n\n", sql)
	}
	body.WriteString(explain(err))
	msg.Body = body.String()
	return msg
}

func (o *Orchestrator) reply(email InboundEmail) OutboundMessage {
	return OutboundMessage{
		To:        email.From,
		Subject:   ReplySubject(email.Subject),
		InReplyTo: email.MessageID,
	}
}

// ReplySubject prefixes subject with "Re: " unless it already has it
func ReplySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "Re: your question"
	}
	if len(subject) >= 3 && strings.EqualFold(subject[:3], "re:") {
		return subject
	}
	return "Re: " + subject
}

// explain turns a pipeline error into a sentence for the sender
func explain(err error) string {
	var qe *QueryError
	detail := ""
	if errors.As(err, &qe) && qe.Message != "" {
		detail = " (" + qe.Message + ")"
	}

	switch KindOf(err) {
	case KindTranslationFailure:
		return "Sorry, I could not turn your question into a database query. Try rephrasing it."
	case KindSyntaxError:
		return "Sorry, the generated SQL was not valid" + detail + ". Try rephrasing your question."
	case KindSchemaMismatch:
		return "Sorry, the generated SQL refers to a table or column that does not exist" + detail + "."
	case KindConstraintViolation:
		return "The change was rejected because it would break the integrity of the data" + detail + "."
	case KindExecutionTimeout:
		return "Sorry, the query took too long and was stopped. Try asking for less data."
	case KindStatementNotAllowed:
		return "Sorry, that kind of statement is not allowed" + detail + "."
	}
	return "Sorry, something went wrong while answering your question. Please try again later."
}

func kindOrDefault(err error, def ErrorKind) ErrorKind {
	if kind := KindOf(err); kind != "" {
		return kind
	}
	return def
}

type chartKinder interface {
	ChartKind(result *QueryResult) string
}

func chartKindOf(v Visualizer, result *QueryResult) string {
	if k, ok := v.(chartKinder); ok {
		return k.ChartKind(result)
	}
	return "chart"
}

// textPreview lays out the first limit rows as aligned plain text
func textPreview(result *QueryResult, limit int) string {
	records := result.Records
	if len(records) > limit {
		records = records[:limit]
	}

	cells := make([][]string, 0, len(records)+1)
	cells = append(cells, append([]string(nil), result.Columns...))
	for _, rec := range records {
		row := make([]string, len(result.Columns))
		for i := range row {
			if i < len(rec) {
				row[i] = truncate(formatCell(rec[i]), maxCellChars)
			}
		}
		cells = append(cells, row)
	}

	widths := make([]int, len(result.Columns))
	for _, row := range cells {
		for i, c := range row {
			widths[i] = max(widths[i], len([]rune(c)))
		}
	}

	var b strings.Builder
	for r, row := range cells {
		for i, c := range row {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(c)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-len([]rune(c))))
			}
		}
		b.WriteString("\n")
		if r == 0 {
			for i, w := range widths {
				if i > 0 {
					b.WriteString("-+-")
				}
				b.WriteString(strings.Repeat("-", w))
			}
			b.WriteString("\n")
		}
	}
	if len(result.Records) > limit {
		fmt.Fprintf(&b, "... %d more rows", len(result.Records)-limit)
	}
	return strings.TrimRight(b.String(), "\n")
}
