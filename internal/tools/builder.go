// Package tools builds the callable-action schema offered to the model each
// turn. Enum-constrained tools are only exposed when they have at least one
// admissible target, so the model cannot invent a stage or agent name.
package tools

import (
	"fmt"
	"strings"

	"github.com/zapflowai/zapflow/internal/commands"
	"github.com/zapflowai/zapflow/internal/llm"
)

// Argument names per command, shared with the executor side.
const (
	ArgTag        = "etiqueta"
	ArgStage      = "etapa"
	ArgAgent      = "nome_agente"
	ArgDepartment = "departamento"
	ArgTeammate   = "nome_usuario"
	ArgMessage    = "mensagem"
	ArgOrigin     = "origem"
)

// AgentOption is a transfer target with its specialty, surfaced in the tool
// description so the model picks the right sibling.
type AgentOption struct {
	Name      string
	Specialty string
}

// Catalog holds the admissible targets per category for one turn.
type Catalog struct {
	Tags        []string
	Stages      []string
	Agents      []AgentOption
	Departments []string
}

// Build assembles the tool set for a turn.
func Build(c Catalog) []llm.Tool {
	decls := []llm.FunctionDeclaration{
		tagTool(c.Tags),
	}
	if len(c.Stages) > 0 {
		decls = append(decls, enumTool(commands.CmdMoveStage,
			"Move o contato para outra etapa do CRM.", ArgStage, c.Stages))
	}
	if len(c.Agents) > 0 {
		decls = append(decls, agentTool(c.Agents))
	}
	if len(c.Departments) > 0 {
		decls = append(decls, enumTool(commands.CmdAssignDepartment,
			"Atribui a conversa a um departamento.", ArgDepartment, c.Departments))
	}
	decls = append(decls,
		freeTextTool(commands.CmdTransferUser,
			"Transfere a conversa para um atendente humano. Informe o nome do atendente.", ArgTeammate),
		freeTextTool(commands.CmdNotifyTeam,
			"Envia um aviso interno para a equipe da empresa.", ArgMessage),
		freeTextTool(commands.CmdSetOrigin,
			"Registra a origem do lead (ex: Instagram, indicacao, site).", ArgOrigin),
		llm.FunctionDeclaration{
			Name:        commands.CmdDeactivate,
			Description: "Desativa o agente nesta conversa em definitivo. Use apenas quando o contato pedir para nao falar com o assistente.",
			Parameters:  &llm.Schema{Type: "object", Properties: map[string]*llm.Schema{}},
		},
	)
	return []llm.Tool{{FunctionDeclarations: decls}}
}

func tagTool(tags []string) llm.FunctionDeclaration {
	param := &llm.Schema{Type: "string", Description: "Nome da etiqueta"}
	if len(tags) > 0 {
		param.Enum = tags
	}
	return llm.FunctionDeclaration{
		Name:        commands.CmdAddTag,
		Description: "Adiciona uma etiqueta ao contato.",
		Parameters: &llm.Schema{
			Type:       "object",
			Properties: map[string]*llm.Schema{ArgTag: param},
			Required:   []string{ArgTag},
		},
	}
}

func agentTool(options []AgentOption) llm.FunctionDeclaration {
	names := make([]string, len(options))
	var desc strings.Builder
	desc.WriteString("Transfere a conversa para outro agente especializado. Agentes disponiveis:")
	for i, o := range options {
		names[i] = o.Name
		if o.Specialty != "" {
			fmt.Fprintf(&desc, " %s (%s);", o.Name, o.Specialty)
		} else {
			fmt.Fprintf(&desc, " %s;", o.Name)
		}
	}
	return enumTool(commands.CmdTransferAgent, desc.String(), ArgAgent, names)
}

func enumTool(name, description, arg string, values []string) llm.FunctionDeclaration {
	return llm.FunctionDeclaration{
		Name:        name,
		Description: description,
		Parameters: &llm.Schema{
			Type: "object",
			Properties: map[string]*llm.Schema{
				arg: {Type: "string", Enum: values},
			},
			Required: []string{arg},
		},
	}
}

func freeTextTool(name, description, arg string) llm.FunctionDeclaration {
	return llm.FunctionDeclaration{
		Name:        name,
		Description: description,
		Parameters: &llm.Schema{
			Type: "object",
			Properties: map[string]*llm.Schema{
				arg: {Type: "string"},
			},
			Required: []string{arg},
		},
	}
}

// RequestFromCall converts a structured tool call into a command request,
// pulling the single string argument regardless of its name.
func RequestFromCall(call llm.ToolCall) commands.Request {
	req := commands.Request{Name: call.Name, Source: commands.SourceTool}
	for _, arg := range []string{ArgTag, ArgStage, ArgAgent, ArgDepartment, ArgTeammate, ArgMessage, ArgOrigin} {
		if v, ok := call.Arguments[arg]; ok {
			req.Value = v
			return req
		}
	}
	for _, v := range call.Arguments {
		req.Value = v
		return req
	}
	return req
}
