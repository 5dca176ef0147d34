package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/zapflowai/zapflow/internal/db"
)

// Service resolves connections, agents and sub-agents for a turn.
type Service struct {
	queries *db.Queries
	log     *slog.Logger
}

func NewService(queries *db.Queries, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		queries: queries,
		log:     log.With(slog.String("service", "agents")),
	}
}

// Profile is the prompt-facing view of an agent. When a sub-agent is in
// control its persona fields replace the root agent's, while audio settings
// always come from the root agent so the contact hears a consistent voice.
type Profile struct {
	ID                  string
	RootID              string
	CompanyID           string
	Name                string
	Script              string
	Rules               string
	Faq                 string
	CompanyInfo         string
	ContractLink        string
	Specialty           string
	Temperature         float64
	TriggerPhrases      []string
	VoiceName           string
	ShouldGenerateAudio bool
	SpeechSpeed         float64
	AudioTemperature    float64
	LanguageCode        string
}

// Connection returns the connection row for the given id.
func (s *Service) Connection(ctx context.Context, connectionID string) (db.Connection, error) {
	id, err := db.ParseUUID(connectionID)
	if err != nil {
		return db.Connection{}, fmt.Errorf("invalid connection id: %w", err)
	}
	conn, err := s.queries.GetConnection(ctx, id)
	if err != nil {
		return db.Connection{}, fmt.Errorf("get connection: %w", err)
	}
	return conn, nil
}

// Profile loads the root agent bound to a connection and, when subAgentID is
// set, overlays that sub-agent's persona on top of it.
func (s *Service) Profile(ctx context.Context, rootAgentID pgtype.UUID, subAgentID pgtype.UUID) (Profile, error) {
	root, err := s.queries.GetAgent(ctx, rootAgentID)
	if err != nil {
		return Profile{}, fmt.Errorf("get agent: %w", err)
	}
	if !root.Active {
		return Profile{}, fmt.Errorf("agent %s is inactive", db.UUIDToString(root.ID))
	}
	profile := fromRow(root)
	profile.RootID = profile.ID

	if !subAgentID.Valid {
		return profile, nil
	}
	sub, err := s.queries.GetAgent(ctx, subAgentID)
	if err != nil {
		s.log.Warn("sub-agent lookup failed, falling back to root agent",
			slog.String("sub_agent_id", db.UUIDToString(subAgentID)),
			slog.String("error", err.Error()))
		return profile, nil
	}
	if !sub.Active {
		return profile, nil
	}
	return overlay(profile, sub), nil
}

// Resolve accepts either an agent UUID or a name and returns the matching
// active agent of the company.
func (s *Service) Resolve(ctx context.Context, companyID pgtype.UUID, ref string) (db.Agent, error) {
	if id, err := db.ParseUUID(ref); err == nil {
		agent, err := s.queries.GetAgent(ctx, id)
		if err != nil {
			return db.Agent{}, fmt.Errorf("get agent: %w", err)
		}
		if !agent.Active {
			return db.Agent{}, fmt.Errorf("agent %s is inactive", ref)
		}
		if companyID.Valid && agent.CompanyID != companyID {
			return db.Agent{}, fmt.Errorf("agent %s belongs to another company", ref)
		}
		return agent, nil
	}
	return s.ResolveByName(ctx, companyID, ref)
}

// ResolveByName finds an active agent of the company whose name matches the
// requested one, first exactly and then by substring, both case-insensitive.
func (s *Service) ResolveByName(ctx context.Context, companyID pgtype.UUID, name string) (db.Agent, error) {
	want := strings.TrimSpace(name)
	if want == "" {
		return db.Agent{}, fmt.Errorf("empty agent name")
	}
	candidates, err := s.queries.ListActiveAgentsByCompany(ctx, companyID)
	if err != nil {
		return db.Agent{}, fmt.Errorf("list agents: %w", err)
	}
	for _, a := range candidates {
		if strings.EqualFold(strings.TrimSpace(a.Name), want) {
			return a, nil
		}
	}
	lower := strings.ToLower(want)
	for _, a := range candidates {
		if strings.Contains(strings.ToLower(a.Name), lower) {
			return a, nil
		}
	}
	return db.Agent{}, fmt.Errorf("no active agent named %q", want)
}

func fromRow(a db.Agent) Profile {
	return Profile{
		ID:                  db.UUIDToString(a.ID),
		CompanyID:           db.UUIDToString(a.CompanyID),
		Name:                a.Name,
		Script:              a.Script,
		Rules:               a.Rules,
		Faq:                 a.Faq,
		CompanyInfo:         a.CompanyInfo,
		ContractLink:        db.TextToString(a.ContractLink),
		Specialty:           db.TextToString(a.Specialty),
		Temperature:         a.Temperature,
		TriggerPhrases:      decodePhrases(a.TriggerPhrases),
		VoiceName:           db.TextToString(a.VoiceName),
		ShouldGenerateAudio: a.ShouldGenerateAudio,
		SpeechSpeed:         a.SpeechSpeed,
		AudioTemperature:    a.AudioTemperature,
		LanguageCode:        a.LanguageCode,
	}
}

// overlay replaces the persona fields of base with the sub-agent's while
// keeping the root's identity for audio and trigger configuration.
func overlay(base Profile, sub db.Agent) Profile {
	out := base
	out.ID = db.UUIDToString(sub.ID)
	out.Name = sub.Name
	out.Script = sub.Script
	out.Rules = sub.Rules
	out.Faq = sub.Faq
	out.CompanyInfo = sub.CompanyInfo
	if link := db.TextToString(sub.ContractLink); link != "" {
		out.ContractLink = link
	}
	if spec := db.TextToString(sub.Specialty); spec != "" {
		out.Specialty = spec
	}
	if sub.Temperature > 0 {
		out.Temperature = sub.Temperature
	}
	return out
}

func decodePhrases(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var phrases []string
	if err := json.Unmarshal(raw, &phrases); err != nil {
		return nil
	}
	out := phrases[:0]
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
