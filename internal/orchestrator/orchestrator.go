// Package orchestrator drives the LLM↔tool loop that turns one user
// utterance into a stream of ChatChunks, interleaving persistence, scope
// checking, tool dispatch, and SSE-ready emission.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/chatcore/internal/convo"
	"github.com/haasonsaas/chatcore/internal/llm"
	"github.com/haasonsaas/chatcore/internal/observability"
	"github.com/haasonsaas/chatcore/internal/scope"
	"github.com/haasonsaas/chatcore/internal/tokens"
	"github.com/haasonsaas/chatcore/internal/tools"
	"github.com/haasonsaas/chatcore/pkg/chatmodel"
)

// Config bounds the orchestrator's per-request behavior.
type Config struct {
	// MaxContextTokens is the token budget Conversation Store.MessagesForContext
	// selects a history suffix within, after reserving tokens for the system
	// prompt. The store, not the orchestrator, owns the selection algorithm;
	// this value is forwarded at store construction.
	MaxContextTokens int

	// MaxMessagesPerConversation bounds how many messages PruneOldest keeps
	// after each utterance.
	MaxMessagesPerConversation int

	// MaxConversationsPerUser bounds EnforceLimit when starting a new
	// conversation (thread_id absent).
	MaxConversationsPerUser int

	// MaxToolRounds bounds the tool-call loop's round count.
	MaxToolRounds int

	// MaxToolRetries bounds how many times a single tool name may be
	// invoked within one utterance's loop.
	MaxToolRetries int

	// RequestMaxTokens is forwarded on every llm.Request.
	RequestMaxTokens int
}

// DefaultConfig returns the orchestrator's recommended tunables.
func DefaultConfig() Config {
	return Config{
		MaxContextTokens:           8000,
		MaxMessagesPerConversation: 100,
		MaxConversationsPerUser:    20,
		MaxToolRounds:              10,
		MaxToolRetries:             3,
		RequestMaxTokens:           4096,
	}
}

// TitleGenerator synthesizes a short conversation title from its opening
// exchange. A nil TitleGenerator disables title synthesis entirely.
type TitleGenerator func(ctx context.Context, userUtterance, assistantText string) (string, error)

// chunkBuffer bounds how many ChatChunks can be queued before the consumer
// catches up.
const chunkBuffer = 32

// Orchestrator owns the streaming chat loop that turns one user utterance
// into a sequence of ChatChunks, interleaving LLM streaming, tool dispatch,
// and persistence.
type Orchestrator struct {
	store    convo.Store
	registry *tools.Registry
	router   *tools.Router
	provider llm.Provider
	log      *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	config   Config
	titleGen TitleGenerator
}

// NewOrchestrator builds an Orchestrator. log may be nil: internal failures
// are still reported to the caller via ERROR chunks regardless, but go
// unrecorded when absent. Metrics and tracing are optional and installed
// afterward via SetMetrics/SetTracer.
func NewOrchestrator(store convo.Store, registry *tools.Registry, router *tools.Router, provider llm.Provider, log *observability.Logger, config Config) *Orchestrator {
	if config.MaxToolRounds <= 0 {
		config.MaxToolRounds = DefaultConfig().MaxToolRounds
	}
	if config.MaxToolRetries <= 0 {
		config.MaxToolRetries = DefaultConfig().MaxToolRetries
	}
	if config.MaxConversationsPerUser <= 0 {
		config.MaxConversationsPerUser = DefaultConfig().MaxConversationsPerUser
	}
	if config.MaxMessagesPerConversation <= 0 {
		config.MaxMessagesPerConversation = DefaultConfig().MaxMessagesPerConversation
	}
	if config.RequestMaxTokens <= 0 {
		config.RequestMaxTokens = DefaultConfig().RequestMaxTokens
	}
	return &Orchestrator{
		store:    store,
		registry: registry,
		router:   router,
		provider: provider,
		log:      log,
		config:   config,
	}
}

// SetTitleGenerator installs gen as the title synthesizer used at step (j)
// of Handle. Passing nil disables title synthesis.
func (o *Orchestrator) SetTitleGenerator(gen TitleGenerator) {
	o.titleGen = gen
}

// SetMetrics installs m as the orchestrator's metrics sink. Passing nil
// disables metrics recording.
func (o *Orchestrator) SetMetrics(m *observability.Metrics) {
	o.metrics = m
}

// SetTracer installs t as the orchestrator's tracer. Passing nil disables
// span creation for this request.
func (o *Orchestrator) SetTracer(t *observability.Tracer) {
	o.tracer = t
}

// HandleInput is one user utterance submitted to the orchestrator.
type HandleInput struct {
	User        string
	Utterance   string
	ThreadID    string
	UserContext string // e.g. a rendered trip/price snapshot for the system prompt
}

var outOfScopeMessage = "I can help with trip planning, price tracking, and related travel questions — " +
	"that request is outside what I can do here."

// Handle turns one user utterance into a streamed exchange. It returns
// immediately with a channel of ChatChunks; the channel is always closed
// with a final DONE chunk (or earlier, on an unrecoverable failure, with
// an ERROR chunk immediately preceding DONE).
func (o *Orchestrator) Handle(ctx context.Context, in HandleInput) (<-chan chatmodel.ChatChunk, error) {
	out := make(chan chatmodel.ChatChunk, chunkBuffer)
	go func() {
		defer close(out)
		o.run(ctx, in, out)
	}()
	return out, nil
}

func (o *Orchestrator) run(ctx context.Context, in HandleInput, out chan<- chatmodel.ChatChunk) {
	threadID := in.ThreadID
	first := true
	emit := func(c chatmodel.ChatChunk) {
		if first {
			c.ThreadID = threadID
			first = false
		}
		out <- c
	}

	if o.tracer != nil {
		var span trace.Span
		ctx, span = o.tracer.Start(ctx, "chat.utterance")
		o.tracer.SetAttributes(span, "user", in.User, "thread_id", threadID)
		defer span.End()
	}

	// (a) scope check — out-of-scope utterances are never persisted.
	verdict := scope.Classify(in.Utterance)
	if verdict.Verdict == scope.Invalid {
		emit(chatmodel.Content(outOfScopeMessage))
		emit(chatmodel.Done(threadID))
		return
	}

	// (b) per-user conversation limit, only when starting a new thread.
	if in.ThreadID == "" {
		if err := o.store.EnforceLimit(ctx, in.User, o.config.MaxConversationsPerUser); err != nil {
			o.fail(emit, threadID, PhaseInit, 0, err)
			return
		}
	}

	// (c) get or create the conversation.
	conversation, err := o.store.GetOrCreate(ctx, in.ThreadID, in.User)
	if err != nil {
		o.fail(emit, threadID, PhaseInit, 0, err)
		return
	}
	threadID = conversation.ID

	// (d) persist the user message.
	if _, err := o.store.Append(ctx, threadID, convo.AppendInput{
		Role: chatmodel.RoleUser, Content: in.Utterance,
	}); err != nil {
		o.fail(emit, threadID, PhaseInit, 0, err)
		return
	}

	// Everything past this point is a best-effort rollback: the Store
	// interface exposes no cross-call transaction, so a failure here
	// surfaces as ERROR+DONE without attempting to unwind the user
	// message already committed by (d). See DESIGN.md.

	// (e) system prompt.
	systemPrompt := o.buildSystemPrompt(in.User, in.UserContext)

	// (f) context window selection.
	history, err := o.store.MessagesForContext(ctx, threadID, systemPrompt)
	if err != nil {
		o.fail(emit, threadID, PhasePersist, 0, err)
		return
	}
	if o.metrics != nil {
		historyMessages := make([]chatmodel.Message, len(history))
		for i, m := range history {
			historyMessages[i] = *m
		}
		o.metrics.RecordContextWindow(tokens.CountMessages(historyMessages, systemPrompt))
	}

	// (g) compose the LLM input.
	messages := make([]chatmodel.Message, 0, len(history)+1)
	messages = append(messages, chatmodel.Message{Role: chatmodel.RoleSystem, Content: systemPrompt})
	for _, m := range history {
		messages = append(messages, *m)
	}

	// (h) run the bounded tool-call loop.
	result, err := o.runToolCallLoop(ctx, in.User, messages, emit)
	if err != nil {
		var le *LoopError
		if errors.As(err, &le) {
			o.fail(emit, threadID, le.Phase, le.Round, le.Cause)
		} else {
			o.fail(emit, threadID, PhaseStream, 0, err)
		}
		return
	}

	// (i) persist the accumulated assistant turn and every observed tool
	// result, in observed order.
	if result.assistantText != "" || len(result.toolCalls) > 0 {
		if _, err := o.store.Append(ctx, threadID, convo.AppendInput{
			Role: chatmodel.RoleAssistant, Content: result.assistantText, ToolCalls: result.toolCalls,
		}); err != nil {
			o.fail(emit, threadID, PhasePersist, 0, err)
			return
		}
	}
	for _, tr := range result.observed {
		if _, err := o.store.Append(ctx, threadID, convo.AppendInput{
			Role: chatmodel.RoleTool, Content: resultJSON(tr.result), ToolCallID: tr.id, Name: tr.name,
		}); err != nil {
			o.fail(emit, threadID, PhasePersist, 0, err)
			return
		}
	}

	// (j) title synthesis is a non-fatal side effect.
	o.maybeSynthesizeTitle(ctx, threadID, in.User, conversation.Title, in.Utterance, result.assistantText)

	// (k) prune.
	if _, err := o.store.PruneOldest(ctx, threadID, o.config.MaxMessagesPerConversation); err != nil {
		o.fail(emit, threadID, PhasePersist, 0, err)
		return
	}

	// (l) commit is implicit; emit DONE.
	emit(chatmodel.Done(threadID))
}

func (o *Orchestrator) maybeSynthesizeTitle(ctx context.Context, threadID, user, existingTitle, userUtterance, assistantText string) {
	if o.titleGen == nil || existingTitle != "" {
		return
	}
	msgs, err := o.store.Messages(ctx, threadID, 0)
	if err != nil {
		o.logError(ctx, "title synthesis: load messages failed", err)
		return
	}
	var hasUser, hasAssistant bool
	for _, m := range msgs {
		switch m.Role {
		case chatmodel.RoleUser:
			hasUser = true
		case chatmodel.RoleAssistant:
			hasAssistant = true
		}
	}
	if !hasUser || !hasAssistant {
		return
	}
	title, err := o.titleGen(ctx, userUtterance, assistantText)
	if err != nil {
		o.logError(ctx, "title synthesis failed", err)
		return
	}
	if title == "" {
		return
	}
	if err := o.store.SetTitle(ctx, threadID, user, title); err != nil {
		o.logError(ctx, "title persistence failed", err)
	}
}

// fail emits a generic ERROR chunk followed by DONE and logs the concrete
// cause so internals never leak to the caller. threadID is unused beyond
// documenting intent at call sites — it is already baked into emit via the
// closure each caller set up.
func (o *Orchestrator) fail(emit func(chatmodel.ChatChunk), threadID string, phase Phase, round int, cause error) {
	o.logError(context.Background(), "orchestrator request failed", &LoopError{Phase: phase, Round: round, Cause: cause})
	emit(chatmodel.ErrorChunk("Something went wrong processing that request."))
	emit(chatmodel.Done(threadID))
}

func (o *Orchestrator) logError(ctx context.Context, msg string, err error) {
	if o.log == nil {
		return
	}
	o.log.Error(ctx, msg, "error", err)
}

// buildSystemPrompt incorporates user identity, the caller-supplied trip
// snapshot, and a short statement of scope.
func (o *Orchestrator) buildSystemPrompt(user, userContext string) string {
	var b strings.Builder
	b.WriteString("You are a vacation price-tracking assistant speaking with ")
	b.WriteString(user)
	b.WriteString(".\n")
	b.WriteString("You can create and manage trips, set and adjust price alerts, pause or resume tracking, ")
	b.WriteString("trigger price refreshes, and search flights and hotels by calling the tools available to you.\n")
	b.WriteString("Stay within travel planning and price tracking; if asked about anything else, redirect politely.\n")
	if userContext != "" {
		b.WriteString("\nTrips and prices currently known for this user:\n")
		b.WriteString(userContext)
	}
	return b.String()
}

// resultPayload extracts the chunk/message payload for a ToolResult: its
// data on success, or {"error": ...} on failure.
func resultPayload(r chatmodel.ToolResult) map[string]any {
	if r.Success {
		return r.Data
	}
	return map[string]any{"error": r.Error}
}

func resultJSON(r chatmodel.ToolResult) string {
	b, err := json.Marshal(resultPayload(r))
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(b)
}

// llmErrorMessage converts a typed llm error into user-facing wording that
// distinguishes daily-quota exhaustion from a transient rate limit,
// falling back to a generic message for anything else.
func llmErrorMessage(err error) string {
	var authErr *llm.AuthError
	var rle *llm.RateLimitError
	var tcge *llm.ToolCallGenerationError
	var reqErr *llm.RequestError

	switch {
	case errors.As(err, &authErr):
		return fmt.Sprintf("Authentication with %s failed.", authErr.Provider)
	case errors.As(err, &rle):
		if rle.IsDaily {
			return fmt.Sprintf("%s's daily usage limit has been reached; please try again tomorrow.", rle.Provider)
		}
		return fmt.Sprintf("%s is rate-limiting requests; retry after %.0fs.", rle.Provider, rle.RetryAfter)
	case errors.As(err, &tcge):
		return "The assistant produced a malformed tool call and could not recover."
	case errors.As(err, &reqErr):
		return fmt.Sprintf("%s request failed.", reqErr.Provider)
	default:
		return "An unexpected error occurred while generating a response."
	}
}
