// Package commands executes the directives a model emits during a turn,
// whether they arrive as structured tool calls or as /comando:valor tokens
// embedded in the reply text.
package commands

import "strings"

// Command names are the wire protocol between the model and the executor and
// stay in Portuguese.
const (
	CmdAddTag           = "adicionar_etiqueta"
	CmdTransferAgent    = "transferir_agente"
	CmdTransferUser     = "transferir_usuario"
	CmdMoveStage        = "mudar_etapa_crm"
	CmdAssignDepartment = "atribuir_departamento"
	CmdNotifyTeam       = "notificar_equipe"
	CmdSetOrigin        = "atribuir_origem"
	CmdDeactivate       = "desativar_agente"
)

// Source tells where a request came from. Tool-sourced requests run first;
// text-sourced duplicates of an already-executed request are skipped.
type Source string

const (
	SourceTool Source = "tool"
	SourceText Source = "text"
)

// Request is one directive to execute.
type Request struct {
	Name   string
	Value  string
	Source Source
}

// key is the identity used for de-duplication across sources.
func (r Request) key() string {
	return r.Name + "\x00" + strings.ToLower(strings.TrimSpace(r.Value))
}

var known = map[string]bool{
	CmdAddTag:           true,
	CmdTransferAgent:    true,
	CmdTransferUser:     true,
	CmdMoveStage:        true,
	CmdAssignDepartment: true,
	CmdNotifyTeam:       true,
	CmdSetOrigin:        true,
	CmdDeactivate:       true,
}

// Known reports whether name is a recognized command.
func Known(name string) bool { return known[name] }

// Dedupe removes requests whose (name, normalized value) already appeared
// earlier in the slice, keeping first occurrences. Callers order tool-sourced
// requests before text-sourced ones so tool calls win.
func Dedupe(requests []Request) []Request {
	seen := make(map[string]bool, len(requests))
	out := requests[:0]
	for _, r := range requests {
		k := r.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}
