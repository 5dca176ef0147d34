// Package flow turns one inbound message batch into one agent reply,
// chaining the activation gate, the idempotency guard, the invocation
// strategies, command execution and context persistence.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/zapflowai/zapflow/internal/agents"
	"github.com/zapflowai/zapflow/internal/commands"
	"github.com/zapflowai/zapflow/internal/contacts"
	"github.com/zapflowai/zapflow/internal/contextmem"
	"github.com/zapflowai/zapflow/internal/conversation"
	"github.com/zapflowai/zapflow/internal/crm"
	"github.com/zapflowai/zapflow/internal/db"
	"github.com/zapflowai/zapflow/internal/idempotency"
	"github.com/zapflowai/zapflow/internal/llm"
	"github.com/zapflowai/zapflow/internal/media"
	"github.com/zapflowai/zapflow/internal/mediacache"
	"github.com/zapflowai/zapflow/internal/tools"
)

// Skip sentinels owned by the resolver. Together with the conversation
// package's they cover every control-flow skip the handler maps to 200.
var (
	ErrDuplicateBatch = errors.New("identical batch already in flight")
	ErrNoAgent        = errors.New("connection has no agent linked")
)

const historyDepth = 20

// Message is one inbound batch item.
type Message struct {
	Type     string
	Content  string
	MediaURL string
	FileName string
}

// Input is a normalized inbound batch.
type Input struct {
	ConnectionID   string
	ConversationID string
	ContactName    string
	Messages       []Message
}

// MediaOut is an asset queued for out-of-band delivery alongside the reply.
type MediaOut struct {
	Type     string `json:"type"`
	Key      string `json:"key"`
	URL      string `json:"url,omitempty"`
	Content  string `json:"content,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

// Reply is the resolved agent turn.
type Reply struct {
	Text                string
	AgentID             string
	AgentName           string
	DelaySeconds        int32
	VoiceName           string
	ShouldGenerateAudio bool
	SpeechSpeed         float64
	AudioTemperature    float64
	LanguageCode        string
	Medias              []MediaOut
}

// modelClient is what the resolver needs from the vendor client.
type modelClient interface {
	GenerateContent(ctx context.Context, req llm.GenerateRequest) (llm.Result, error)
	Transcribe(ctx context.Context, mimeType string, data []byte, languageCode string) (string, error)
}

// fetcher downloads inbound media with a size ceiling.
type fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Resolver orchestrates a full turn.
type Resolver struct {
	guard      *idempotency.Guard
	agents     *agents.Service
	crm        *crm.Service
	contacts   *contacts.Service
	states     *conversation.Store
	executor   *commands.Executor
	media      *media.Service
	cache      *mediacache.Cache
	analyzer   *mediacache.Analyzer
	downloader fetcher
	model      modelClient
	queries    *db.Queries
	log        *slog.Logger
}

func NewResolver(
	guard *idempotency.Guard,
	agentsSvc *agents.Service,
	crmSvc *crm.Service,
	contactsSvc *contacts.Service,
	states *conversation.Store,
	executor *commands.Executor,
	mediaSvc *media.Service,
	cache *mediacache.Cache,
	analyzer *mediacache.Analyzer,
	downloader fetcher,
	model modelClient,
	queries *db.Queries,
	log *slog.Logger,
) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		guard:      guard,
		agents:     agentsSvc,
		crm:        crmSvc,
		contacts:   contactsSvc,
		states:     states,
		executor:   executor,
		media:      mediaSvc,
		cache:      cache,
		analyzer:   analyzer,
		downloader: downloader,
		model:      model,
		queries:    queries,
		log:        log.With(slog.String("service", "flow")),
	}
}

// Resolve runs one turn end to end. Skip sentinels come back as errors the
// handler maps to 200 skip responses; anything else is a hard failure.
func (r *Resolver) Resolve(ctx context.Context, in Input) (Reply, error) {
	connection, err := r.agents.Connection(ctx, in.ConnectionID)
	if err != nil {
		return Reply{}, err
	}
	if !connection.AgentID.Valid {
		return Reply{}, ErrNoAgent
	}
	convID, err := db.ParseUUID(in.ConversationID)
	if err != nil {
		return Reply{}, fmt.Errorf("invalid conversation id: %w", err)
	}

	if already := r.guard.BeginProcessing(ctx, in.ConversationID, batchSummaries(in.Messages)); already {
		return Reply{}, ErrDuplicateBatch
	}

	conv, err := r.contacts.Conversation(ctx, convID)
	if err != nil {
		return Reply{}, err
	}
	state, err := r.states.Ensure(ctx, convID, connection.AgentID)
	if err != nil {
		return Reply{}, err
	}

	profile, err := r.agents.Profile(ctx, connection.AgentID, state.CurrentSubAgentID)
	if err != nil {
		return Reply{}, err
	}
	if state.CurrentSubAgentID.Valid && profile.ID == profile.RootID {
		// the sub-agent went inactive; hand control back to the root
		if state, err = r.states.SetSubAgent(ctx, state, pgtype.UUID{}); err != nil {
			return Reply{}, err
		}
	}

	resolved := r.prepareMessages(ctx, db.UUIDToString(conv.CompanyID), in.Messages)
	userText := batchText(resolved)

	state, err = r.states.Gate(ctx, state, profile.TriggerPhrases, userText)
	if err != nil {
		return Reply{}, err
	}

	memory := conversation.Memory(state)
	catalog, err := r.loadCatalog(ctx, conv, connection, profile)
	if err != nil {
		return Reply{}, err
	}

	history, err := r.queries.ListRecentMessages(ctx, convID, historyDepth)
	if err != nil {
		r.log.Warn("history load failed, answering without it", slog.String("error", err.Error()))
		history = nil
	}

	bundle := promptBundle{
		system:   systemPrompt(profile, memory, in.ContactName, r.mediaKeys(ctx, profile.ID)),
		history:  historyContents(history),
		userText: userText,
		tools:    tools.Build(catalog),
	}

	result, err := r.invoke(ctx, bundle, profile.Temperature, newestMessage(resolved))
	if err != nil {
		return Reply{}, err
	}

	reply, state, err := r.applyResult(ctx, conv, state, profile, result)
	if err != nil {
		return Reply{}, err
	}

	r.persistMemory(ctx, state, memory, userText, reply.Text)

	if _, err := r.states.Touch(ctx, state); err != nil {
		r.log.Warn("state touch failed", slog.String("error", err.Error()))
	}

	reply.DelaySeconds = connection.DelaySeconds
	return reply, nil
}

// invoke walks the strategy chain until one produces a non-empty result.
func (r *Resolver) invoke(ctx context.Context, bundle promptBundle, temperature float64, newest Message) (llm.Result, error) {
	if temperature <= 0 {
		temperature = 0.7
	}
	chain := r.buildStrategies(newest)
	chain = append(chain,
		&textStrategy{resolver: r, temperature: temperature, label: "text"},
		&textStrategy{resolver: r, temperature: temperature / 2, label: "text-half-temp"},
		&textStrategy{resolver: r, temperature: 0.1, label: "text-floor"},
	)

	bundle.temperature = temperature
	for _, s := range chain {
		result, ok, err := s.invoke(ctx, bundle)
		if err != nil {
			return llm.Result{}, fmt.Errorf("%s invocation: %w", s.name(), err)
		}
		if ok {
			return result, nil
		}
		r.log.Warn("empty model response, trying next strategy", slog.String("strategy", s.name()))
	}
	return llm.Result{}, fmt.Errorf("model returned no usable response after all attempts")
}

// applyResult executes commands, resolves media tags and runs the hand-off
// continuation, producing the outgoing reply.
func (r *Resolver) applyResult(ctx context.Context, conv db.Conversation, state db.ConversationState,
	profile agents.Profile, result llm.Result) (Reply, db.ConversationState, error) {

	var requests []commands.Request
	for _, call := range result.ToolCalls {
		req := tools.RequestFromCall(call)
		if commands.Known(req.Name) {
			requests = append(requests, req)
		} else {
			r.log.Warn("model called unknown tool", slog.String("tool", call.Name))
		}
	}
	text, textRequests := commands.ParseDirectives(result.Text)
	requests = commands.Dedupe(append(requests, textRequests...))

	outcome := r.executor.Execute(ctx, commands.Turn{
		Conversation: conv,
		State:        state,
		RootAgentID:  profile.RootID,
	}, requests)
	state = outcome.State

	text, medias := r.resolveMediaTags(ctx, profile, text)

	if outcome.HandOff {
		if opening := r.continueHandOff(ctx, conv, state, outcome.NewAgent); opening != "" {
			text = opening
		}
	}

	reply := Reply{
		Text:                text,
		AgentID:             profile.ID,
		AgentName:           profile.Name,
		VoiceName:           profile.VoiceName,
		ShouldGenerateAudio: profile.ShouldGenerateAudio,
		SpeechSpeed:         profile.SpeechSpeed,
		AudioTemperature:    profile.AudioTemperature,
		LanguageCode:        profile.LanguageCode,
		Medias:              medias,
	}
	if len(outcome.Executed) > 0 {
		audited := contextmem.RecordAction(conversation.Memory(state), outcome.Executed...)
		updated, err := r.states.SaveMemory(ctx, state, audited)
		if err != nil {
			r.log.Warn("action audit persist failed", slog.String("error", err.Error()))
		} else {
			state = updated
		}
	}
	return reply, state, nil
}

// continueHandOff issues the second short call that produces the new agent's
// opening line. Any failure keeps the original reply.
func (r *Resolver) continueHandOff(ctx context.Context, conv db.Conversation, state db.ConversationState, target db.Agent) string {
	profile, err := r.agents.Profile(ctx, target.ID, pgtype.UUID{})
	if err != nil {
		r.log.Warn("hand-off profile load failed", slog.String("error", err.Error()))
		return ""
	}
	memory := conversation.Memory(state)

	system := systemPrompt(profile, memory, "", r.mediaKeys(ctx, profile.ID))
	prompt := "Voce acabou de assumir esta conversa vinda de outro agente. " +
		"Cumprimente o contato em uma ou duas frases, ja encaminhando o assunto da sua especialidade. " +
		"Nao mencione a transferencia como um processo tecnico."

	temp := profile.Temperature
	if temp <= 0 {
		temp = 0.7
	}
	result, err := r.model.GenerateContent(ctx, llm.GenerateRequest{
		SystemInstruction: &llm.Content{Parts: []llm.Part{{Text: system}}},
		Contents:          []llm.Content{{Role: "user", Parts: []llm.Part{{Text: prompt}}}},
		GenerationConfig:  llm.GenerationConfig{Temperature: &temp, MaxOutputTokens: 256},
	})
	if err != nil {
		r.log.Warn("hand-off continuation failed, keeping original reply", slog.String("error", err.Error()))
		return ""
	}
	return strings.TrimSpace(result.Text)
}

// prepareMessages turns media into text the main call can reason over: audio
// is transcribed through the cache, and visual media older than the newest
// message is described through the analyzer. The newest visual item stays
// untouched so the multimodal strategy can inline its bytes.
func (r *Resolver) prepareMessages(ctx context.Context, tenantID string, in []Message) []Message {
	out := make([]Message, len(in))
	copy(out, in)
	for i, m := range out {
		switch {
		case m.Type == "audio" && m.MediaURL != "":
			if transcript := r.transcribe(ctx, tenantID, m.MediaURL); transcript != "" {
				out[i].Content = transcript
			} else {
				out[i].Content = "[audio nao pode ser transcrito]"
			}
		case i < len(out)-1 && isVisualMedia(m):
			if desc := r.describe(ctx, tenantID, m); desc != "" {
				out[i].Content = desc
			}
		}
	}
	return out
}

// describe fetches and analyzes an older visual media item. Any failure
// leaves the message as a bare placeholder.
func (r *Resolver) describe(ctx context.Context, tenantID string, m Message) string {
	if r.analyzer == nil {
		return ""
	}
	data, mime, err := r.downloader.Fetch(ctx, m.MediaURL)
	if err != nil {
		r.log.Warn("media download failed", slog.String("type", m.Type), slog.String("error", err.Error()))
		return ""
	}
	if mime == "" {
		mime = mimeForType(m.Type)
	}
	desc, err := r.analyzer.Analyze(ctx, tenantID, m.Type, mime, data)
	if err != nil {
		r.log.Warn("media analysis failed", slog.String("type", m.Type), slog.String("error", err.Error()))
		return ""
	}
	return desc
}

func (r *Resolver) transcribe(ctx context.Context, tenantID, url string) string {
	data, mime, err := r.downloader.Fetch(ctx, url)
	if err != nil {
		r.log.Warn("audio download failed", slog.String("error", err.Error()))
		return ""
	}
	key := mediacache.Key(tenantID+":transcribe", data)
	if cached := r.cache.Get(ctx, key); cached != "" {
		return cached
	}
	if mime == "" {
		mime = "audio/ogg"
	}
	transcript, err := r.model.Transcribe(ctx, mime, data, "")
	if err != nil {
		r.log.Warn("transcription failed", slog.String("error", err.Error()))
		return ""
	}
	r.cache.Set(ctx, key, transcript)
	return transcript
}

// resolveMediaTags swaps {{type:key}} tags for deliverable assets.
func (r *Resolver) resolveMediaTags(ctx context.Context, profile agents.Profile, text string) (string, []MediaOut) {
	clean, refs := commands.ParseMediaTags(text)
	if len(refs) == 0 {
		return clean, nil
	}
	agentID, err := db.ParseUUID(profile.ID)
	if err != nil {
		return clean, nil
	}
	var out []MediaOut
	for _, ref := range refs {
		asset, err := r.media.Resolve(ctx, agentID, ref.Type, ref.Key)
		if err != nil {
			r.log.Warn("media tag did not resolve",
				slog.String("type", ref.Type), slog.String("key", ref.Key))
			continue
		}
		out = append(out, MediaOut{
			Type:     asset.MediaType,
			Key:      asset.Key,
			URL:      asset.URL,
			Content:  asset.Content,
			FileName: asset.FileName,
		})
	}
	return clean, out
}

// persistMemory runs the extraction call and merges the delta. Every failure
// here is a degraded continuation, never a turn failure.
func (r *Resolver) persistMemory(ctx context.Context, state db.ConversationState, memory contextmem.Context, userText, replyText string) {
	if replyText == "" {
		return
	}
	temp := 0.2
	result, err := r.model.GenerateContent(ctx, llm.GenerateRequest{
		Contents: []llm.Content{{Role: "user", Parts: []llm.Part{
			{Text: contextmem.ExtractionPrompt(memory, userText, replyText)},
		}}},
		GenerationConfig: llm.GenerationConfig{Temperature: &temp},
	})
	if err != nil {
		r.log.Warn("context extraction call failed", slog.String("error", err.Error()))
		return
	}
	delta, ok := contextmem.ParseExtraction(result.Text)
	if !ok {
		r.log.Warn("context extraction did not parse, keeping previous context")
		return
	}
	merged := contextmem.Merge(conversation.Memory(state), delta)
	if _, err := r.states.SaveMemory(ctx, state, merged); err != nil {
		r.log.Warn("context persist failed", slog.String("error", err.Error()))
	}
}

// loadCatalog gathers the admissible targets for this turn's tool schema.
func (r *Resolver) loadCatalog(ctx context.Context, conv db.Conversation, connection db.Connection, profile agents.Profile) (tools.Catalog, error) {
	var catalog tools.Catalog

	tags, err := r.crm.Tags(ctx, conv.CompanyID)
	if err != nil {
		return catalog, err
	}
	for _, t := range tags {
		catalog.Tags = append(catalog.Tags, t.Name)
	}

	cols, err := r.crm.Columns(ctx, conv.CompanyID)
	if err != nil {
		return catalog, err
	}
	for _, c := range cols {
		catalog.Stages = append(catalog.Stages, c.Name)
	}

	siblings, err := r.queries.ListActiveAgentsByCompany(ctx, conv.CompanyID)
	if err != nil {
		return catalog, err
	}
	for _, a := range siblings {
		id := db.UUIDToString(a.ID)
		if id == profile.ID || id == profile.RootID {
			continue
		}
		catalog.Agents = append(catalog.Agents, tools.AgentOption{
			Name:      a.Name,
			Specialty: db.TextToString(a.Specialty),
		})
	}

	deps, err := r.crm.Departments(ctx, connection.ID)
	if err != nil {
		return catalog, err
	}
	for _, d := range deps {
		catalog.Departments = append(catalog.Departments, d.Name)
	}
	return catalog, nil
}

// mediaKeys lists the agent's asset references so the model only emits
// {{tipo:chave}} tags that actually resolve. A listing failure just leaves
// the acervo section out of the prompt.
func (r *Resolver) mediaKeys(ctx context.Context, agentID string) []string {
	id, err := db.ParseUUID(agentID)
	if err != nil {
		return nil
	}
	library, err := r.media.Library(ctx, id)
	if err != nil {
		r.log.Warn("media library load failed", slog.String("error", err.Error()))
		return nil
	}
	keys := make([]string, 0, len(library))
	for k := range library {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// batchSummaries feeds the idempotency digest: one "type|content" line per
// message, media URLs verbatim.
func batchSummaries(messages []Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		content := m.Content
		if content == "" {
			content = m.MediaURL
		}
		out = append(out, m.Type+"|"+content)
	}
	return out
}

func newestMessage(messages []Message) Message {
	if len(messages) == 0 {
		return Message{}
	}
	return messages[len(messages)-1]
}
