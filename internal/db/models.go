package db

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// Row types mirror the relational schema. Only conversation_states is owned by
// this engine; the remaining tables belong to the main application schema.

type Connection struct {
	ID           pgtype.UUID
	CompanyID    pgtype.UUID
	Name         string
	AgentID      pgtype.UUID
	DelaySeconds int32
}

type Agent struct {
	ID                  pgtype.UUID
	CompanyID           pgtype.UUID
	Name                string
	Active              bool
	Script              string
	Rules               string
	Faq                 string
	CompanyInfo         string
	ContractLink        pgtype.Text
	Specialty           pgtype.Text
	Temperature         float64
	TriggerPhrases      []byte
	VoiceName           pgtype.Text
	ShouldGenerateAudio bool
	SpeechSpeed         float64
	AudioTemperature    float64
	LanguageCode        string
}

type ConversationState struct {
	ID                pgtype.UUID
	ConversationID    pgtype.UUID
	AgentID           pgtype.UUID
	CurrentSubAgentID pgtype.UUID
	Status            string
	PausedUntil       pgtype.Timestamptz
	ActivatedAt       pgtype.Timestamptz
	LastMessageAt     pgtype.Timestamptz
	MessagesProcessed int32
	Metadata          []byte
	CreatedAt         pgtype.Timestamptz
	UpdatedAt         pgtype.Timestamptz
}

type Conversation struct {
	ID             pgtype.UUID
	CompanyID      pgtype.UUID
	ConnectionID   pgtype.UUID
	ContactID      pgtype.UUID
	AssignedUserID pgtype.UUID
	DepartmentID   pgtype.UUID
}

type Contact struct {
	ID        pgtype.UUID
	CompanyID pgtype.UUID
	Name      string
	Phone     pgtype.Text
	Origin    pgtype.Text
}

type Tag struct {
	ID        pgtype.UUID
	CompanyID pgtype.UUID
	Name      string
}

type KanbanColumn struct {
	ID        pgtype.UUID
	CompanyID pgtype.UUID
	Name      string
	Position  int32
}

type Department struct {
	ID           pgtype.UUID
	ConnectionID pgtype.UUID
	Name         string
}

type Teammate struct {
	ID        pgtype.UUID
	CompanyID pgtype.UUID
	Name      string
	Role      string
	Active    bool
}

type Message struct {
	ID             pgtype.UUID
	ConversationID pgtype.UUID
	FromContact    bool
	Kind           string
	Content        pgtype.Text
	MediaUrl       pgtype.Text
	CreatedAt      pgtype.Timestamptz
}

type AgentMedia struct {
	ID        pgtype.UUID
	AgentID   pgtype.UUID
	Key       string
	MediaType string
	Url       pgtype.Text
	Content   pgtype.Text
	FileName  pgtype.Text
	Protected bool
}
