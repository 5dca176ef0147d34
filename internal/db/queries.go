package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func New(db DBTX) *Queries { return &Queries{db: db} }

type Queries struct {
	db DBTX
}

const getConnection = `
SELECT id, company_id, name, agent_id, delay_seconds
FROM connections WHERE id = $1
`

func (q *Queries) GetConnection(ctx context.Context, id pgtype.UUID) (Connection, error) {
	row := q.db.QueryRow(ctx, getConnection, id)
	var i Connection
	err := row.Scan(&i.ID, &i.CompanyID, &i.Name, &i.AgentID, &i.DelaySeconds)
	return i, err
}

const getAgent = `
SELECT id, company_id, name, active, script, rules, faq, company_info,
       contract_link, specialty, temperature, trigger_phrases, voice_name,
       should_generate_audio, speech_speed, audio_temperature, language_code
FROM agents WHERE id = $1
`

func (q *Queries) GetAgent(ctx context.Context, id pgtype.UUID) (Agent, error) {
	row := q.db.QueryRow(ctx, getAgent, id)
	var i Agent
	err := row.Scan(
		&i.ID, &i.CompanyID, &i.Name, &i.Active, &i.Script, &i.Rules, &i.Faq,
		&i.CompanyInfo, &i.ContractLink, &i.Specialty, &i.Temperature,
		&i.TriggerPhrases, &i.VoiceName, &i.ShouldGenerateAudio, &i.SpeechSpeed,
		&i.AudioTemperature, &i.LanguageCode,
	)
	return i, err
}

const listActiveAgentsByCompany = `
SELECT id, company_id, name, active, script, rules, faq, company_info,
       contract_link, specialty, temperature, trigger_phrases, voice_name,
       should_generate_audio, speech_speed, audio_temperature, language_code
FROM agents WHERE company_id = $1 AND active ORDER BY name
`

func (q *Queries) ListActiveAgentsByCompany(ctx context.Context, companyID pgtype.UUID) ([]Agent, error) {
	rows, err := q.db.Query(ctx, listActiveAgentsByCompany, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Agent
	for rows.Next() {
		var i Agent
		if err := rows.Scan(
			&i.ID, &i.CompanyID, &i.Name, &i.Active, &i.Script, &i.Rules, &i.Faq,
			&i.CompanyInfo, &i.ContractLink, &i.Specialty, &i.Temperature,
			&i.TriggerPhrases, &i.VoiceName, &i.ShouldGenerateAudio, &i.SpeechSpeed,
			&i.AudioTemperature, &i.LanguageCode,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getConversationState = `
SELECT id, conversation_id, agent_id, current_sub_agent_id, status,
       paused_until, activated_at, last_message_at, messages_processed,
       metadata, created_at, updated_at
FROM conversation_states WHERE conversation_id = $1
`

func (q *Queries) GetConversationState(ctx context.Context, conversationID pgtype.UUID) (ConversationState, error) {
	row := q.db.QueryRow(ctx, getConversationState, conversationID)
	var i ConversationState
	err := row.Scan(
		&i.ID, &i.ConversationID, &i.AgentID, &i.CurrentSubAgentID, &i.Status,
		&i.PausedUntil, &i.ActivatedAt, &i.LastMessageAt, &i.MessagesProcessed,
		&i.Metadata, &i.CreatedAt, &i.UpdatedAt,
	)
	return i, err
}

const createConversationState = `
INSERT INTO conversation_states (conversation_id, agent_id, status, activated_at, metadata)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, conversation_id, agent_id, current_sub_agent_id, status,
          paused_until, activated_at, last_message_at, messages_processed,
          metadata, created_at, updated_at
`

type CreateConversationStateParams struct {
	ConversationID pgtype.UUID
	AgentID        pgtype.UUID
	Status         string
	ActivatedAt    pgtype.Timestamptz
	Metadata       []byte
}

func (q *Queries) CreateConversationState(ctx context.Context, arg CreateConversationStateParams) (ConversationState, error) {
	row := q.db.QueryRow(ctx, createConversationState,
		arg.ConversationID, arg.AgentID, arg.Status, arg.ActivatedAt, arg.Metadata)
	var i ConversationState
	err := row.Scan(
		&i.ID, &i.ConversationID, &i.AgentID, &i.CurrentSubAgentID, &i.Status,
		&i.PausedUntil, &i.ActivatedAt, &i.LastMessageAt, &i.MessagesProcessed,
		&i.Metadata, &i.CreatedAt, &i.UpdatedAt,
	)
	return i, err
}

const updateConversationState = `
UPDATE conversation_states
SET status = $2,
    current_sub_agent_id = $3,
    paused_until = $4,
    activated_at = $5,
    last_message_at = $6,
    messages_processed = $7,
    metadata = $8,
    updated_at = now()
WHERE conversation_id = $1
RETURNING id, conversation_id, agent_id, current_sub_agent_id, status,
          paused_until, activated_at, last_message_at, messages_processed,
          metadata, created_at, updated_at
`

type UpdateConversationStateParams struct {
	ConversationID    pgtype.UUID
	Status            string
	CurrentSubAgentID pgtype.UUID
	PausedUntil       pgtype.Timestamptz
	ActivatedAt       pgtype.Timestamptz
	LastMessageAt     pgtype.Timestamptz
	MessagesProcessed int32
	Metadata          []byte
}

func (q *Queries) UpdateConversationState(ctx context.Context, arg UpdateConversationStateParams) (ConversationState, error) {
	row := q.db.QueryRow(ctx, updateConversationState,
		arg.ConversationID, arg.Status, arg.CurrentSubAgentID, arg.PausedUntil,
		arg.ActivatedAt, arg.LastMessageAt, arg.MessagesProcessed, arg.Metadata)
	var i ConversationState
	err := row.Scan(
		&i.ID, &i.ConversationID, &i.AgentID, &i.CurrentSubAgentID, &i.Status,
		&i.PausedUntil, &i.ActivatedAt, &i.LastMessageAt, &i.MessagesProcessed,
		&i.Metadata, &i.CreatedAt, &i.UpdatedAt,
	)
	return i, err
}

const getConversation = `
SELECT id, company_id, connection_id, contact_id, assigned_user_id, department_id
FROM conversations WHERE id = $1
`

func (q *Queries) GetConversation(ctx context.Context, id pgtype.UUID) (Conversation, error) {
	row := q.db.QueryRow(ctx, getConversation, id)
	var i Conversation
	err := row.Scan(&i.ID, &i.CompanyID, &i.ConnectionID, &i.ContactID, &i.AssignedUserID, &i.DepartmentID)
	return i, err
}

const assignConversationUser = `
UPDATE conversations SET assigned_user_id = $2 WHERE id = $1
`

func (q *Queries) AssignConversationUser(ctx context.Context, id, userID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, assignConversationUser, id, userID)
	return err
}

const assignConversationDepartment = `
UPDATE conversations SET department_id = $2 WHERE id = $1
`

func (q *Queries) AssignConversationDepartment(ctx context.Context, id, departmentID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, assignConversationDepartment, id, departmentID)
	return err
}

const getContact = `
SELECT id, company_id, name, phone, origin FROM contacts WHERE id = $1
`

func (q *Queries) GetContact(ctx context.Context, id pgtype.UUID) (Contact, error) {
	row := q.db.QueryRow(ctx, getContact, id)
	var i Contact
	err := row.Scan(&i.ID, &i.CompanyID, &i.Name, &i.Phone, &i.Origin)
	return i, err
}

const setContactOrigin = `
UPDATE contacts SET origin = $2 WHERE id = $1
`

func (q *Queries) SetContactOrigin(ctx context.Context, id pgtype.UUID, origin pgtype.Text) error {
	_, err := q.db.Exec(ctx, setContactOrigin, id, origin)
	return err
}

const listTagsByCompany = `
SELECT id, company_id, name FROM tags WHERE company_id = $1 ORDER BY name
`

func (q *Queries) ListTagsByCompany(ctx context.Context, companyID pgtype.UUID) ([]Tag, error) {
	rows, err := q.db.Query(ctx, listTagsByCompany, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Tag
	for rows.Next() {
		var i Tag
		if err := rows.Scan(&i.ID, &i.CompanyID, &i.Name); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const attachContactTag = `
INSERT INTO contact_tags (contact_id, tag_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING
`

func (q *Queries) AttachContactTag(ctx context.Context, contactID, tagID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, attachContactTag, contactID, tagID)
	return err
}

const listKanbanColumnsByCompany = `
SELECT id, company_id, name, position
FROM kanban_columns WHERE company_id = $1 ORDER BY position
`

func (q *Queries) ListKanbanColumnsByCompany(ctx context.Context, companyID pgtype.UUID) ([]KanbanColumn, error) {
	rows, err := q.db.Query(ctx, listKanbanColumnsByCompany, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []KanbanColumn
	for rows.Next() {
		var i KanbanColumn
		if err := rows.Scan(&i.ID, &i.CompanyID, &i.Name, &i.Position); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const moveContactCard = `
INSERT INTO kanban_cards (contact_id, column_id)
VALUES ($1, $2)
ON CONFLICT (contact_id) DO UPDATE SET column_id = EXCLUDED.column_id
`

func (q *Queries) MoveContactCard(ctx context.Context, contactID, columnID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, moveContactCard, contactID, columnID)
	return err
}

const listDepartmentsByConnection = `
SELECT id, connection_id, name
FROM departments WHERE connection_id = $1 ORDER BY name
`

func (q *Queries) ListDepartmentsByConnection(ctx context.Context, connectionID pgtype.UUID) ([]Department, error) {
	rows, err := q.db.Query(ctx, listDepartmentsByConnection, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Department
	for rows.Next() {
		var i Department
		if err := rows.Scan(&i.ID, &i.ConnectionID, &i.Name); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listActiveTeammatesByCompany = `
SELECT id, company_id, name, role, active
FROM users WHERE company_id = $1 AND active ORDER BY name
`

func (q *Queries) ListActiveTeammatesByCompany(ctx context.Context, companyID pgtype.UUID) ([]Teammate, error) {
	rows, err := q.db.Query(ctx, listActiveTeammatesByCompany, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Teammate
	for rows.Next() {
		var i Teammate
		if err := rows.Scan(&i.ID, &i.CompanyID, &i.Name, &i.Role, &i.Active); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listRecentMessages = `
SELECT id, conversation_id, from_contact, kind, content, media_url, created_at
FROM messages WHERE conversation_id = $1
ORDER BY created_at DESC LIMIT $2
`

func (q *Queries) ListRecentMessages(ctx context.Context, conversationID pgtype.UUID, limit int32) ([]Message, error) {
	rows, err := q.db.Query(ctx, listRecentMessages, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Message
	for rows.Next() {
		var i Message
		if err := rows.Scan(&i.ID, &i.ConversationID, &i.FromContact, &i.Kind, &i.Content, &i.MediaUrl, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listAgentMedia = `
SELECT id, agent_id, key, media_type, url, content, file_name, protected
FROM agent_media WHERE agent_id = $1 ORDER BY key
`

func (q *Queries) ListAgentMedia(ctx context.Context, agentID pgtype.UUID) ([]AgentMedia, error) {
	rows, err := q.db.Query(ctx, listAgentMedia, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AgentMedia
	for rows.Next() {
		var i AgentMedia
		if err := rows.Scan(&i.ID, &i.AgentID, &i.Key, &i.MediaType, &i.Url, &i.Content, &i.FileName, &i.Protected); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const createNotification = `
INSERT INTO notifications (company_id, user_id, title, body) VALUES ($1, $2, $3, $4)
`

func (q *Queries) CreateNotification(ctx context.Context, companyID, userID pgtype.UUID, title, body string) error {
	_, err := q.db.Exec(ctx, createNotification, companyID, userID, title, body)
	return err
}

const createConversationNote = `
INSERT INTO conversation_notes (conversation_id, body, internal) VALUES ($1, $2, true)
`

func (q *Queries) CreateConversationNote(ctx context.Context, conversationID pgtype.UUID, body string) error {
	_, err := q.db.Exec(ctx, createConversationNote, conversationID, body)
	return err
}
