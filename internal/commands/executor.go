package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zapflowai/zapflow/internal/agents"
	"github.com/zapflowai/zapflow/internal/contacts"
	"github.com/zapflowai/zapflow/internal/conversation"
	"github.com/zapflowai/zapflow/internal/crm"
	"github.com/zapflowai/zapflow/internal/db"
	"github.com/zapflowai/zapflow/internal/notify"
)

// Turn carries the identities a batch of commands operates on.
type Turn struct {
	Conversation db.Conversation
	State        db.ConversationState
	RootAgentID  string
}

// Outcome reports what the batch changed. Errors are collected per command;
// one failure never stops the remaining commands.
type Outcome struct {
	State       db.ConversationState
	HandOff     bool
	NewAgent    db.Agent
	Deactivated bool
	Executed    []string
	Errors      []error
}

// Executor dispatches command requests to the services that carry them out.
type Executor struct {
	agents   *agents.Service
	crm      *crm.Service
	contacts *contacts.Service
	states   *conversation.Store
	notify   *notify.Service
	log      *slog.Logger
}

func NewExecutor(agentsSvc *agents.Service, crmSvc *crm.Service, contactsSvc *contacts.Service,
	states *conversation.Store, notifySvc *notify.Service, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		agents:   agentsSvc,
		crm:      crmSvc,
		contacts: contactsSvc,
		states:   states,
		notify:   notifySvc,
		log:      log.With(slog.String("service", "commands")),
	}
}

// Execute runs every request in order. Callers pass tool-sourced requests
// before text-sourced ones and requests already deduplicated.
func (e *Executor) Execute(ctx context.Context, turn Turn, requests []Request) Outcome {
	out := Outcome{State: turn.State}
	for _, req := range requests {
		if err := e.run(ctx, turn, req, &out); err != nil {
			out.Errors = append(out.Errors, fmt.Errorf("%s: %w", req.Name, err))
			e.log.Warn("command failed",
				slog.String("command", req.Name),
				slog.String("value", req.Value),
				slog.String("source", string(req.Source)),
				slog.String("error", err.Error()))
			continue
		}
		out.Executed = append(out.Executed, req.Name+":"+req.Value)
	}
	return out
}

func (e *Executor) run(ctx context.Context, turn Turn, req Request, out *Outcome) error {
	conv := turn.Conversation
	switch req.Name {
	case CmdAddTag:
		tag, err := e.crm.FindTag(ctx, conv.CompanyID, req.Value)
		if err != nil {
			// unknown tags are never auto-created
			e.log.Info("ignoring unknown tag", slog.String("tag", req.Value))
			return nil
		}
		return e.contacts.AttachTag(ctx, conv.ContactID, tag.ID)

	case CmdTransferAgent:
		target, err := e.agents.Resolve(ctx, conv.CompanyID, req.Value)
		if err != nil {
			e.log.Warn("agent transfer target not found", slog.String("target", req.Value))
			return nil
		}
		if db.UUIDToString(target.ID) == turn.RootAgentID {
			e.log.Info("ignoring transfer to the agent already in control")
			return nil
		}
		state, err := e.states.SetSubAgent(ctx, out.State, target.ID)
		if err != nil {
			return err
		}
		out.State = state
		out.HandOff = true
		out.NewAgent = target
		return nil

	case CmdTransferUser:
		mate, err := e.crm.FindTeammate(ctx, conv.CompanyID, req.Value)
		if err != nil {
			return err
		}
		if err := e.contacts.AssignUser(ctx, conv.ID, mate.ID); err != nil {
			return err
		}
		state, err := e.states.Deactivate(ctx, out.State)
		if err != nil {
			return err
		}
		out.State = state
		out.Deactivated = true
		return nil

	case CmdMoveStage:
		col, err := e.crm.FindColumn(ctx, conv.CompanyID, req.Value)
		if err != nil {
			e.log.Warn("kanban column not found", slog.String("column", req.Value))
			return nil
		}
		return e.contacts.MoveStage(ctx, conv.ContactID, col.ID)

	case CmdAssignDepartment:
		dep, err := e.crm.FindDepartment(ctx, conv.ConnectionID, req.Value)
		if err != nil {
			return err
		}
		return e.contacts.AssignDepartment(ctx, conv.ID, dep.ID)

	case CmdNotifyTeam:
		return e.notify.NotifyAdmins(ctx, conv.CompanyID, conv.ID, req.Value)

	case CmdSetOrigin:
		return e.contacts.SetOrigin(ctx, conv.ContactID, req.Value)

	case CmdDeactivate:
		state, err := e.states.Deactivate(ctx, out.State)
		if err != nil {
			return err
		}
		out.State = state
		out.Deactivated = true
		return nil

	default:
		return fmt.Errorf("unknown command")
	}
}
