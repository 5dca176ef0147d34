package contextmem

import (
	"sort"
	"strings"
)

// formatHistoryTail limits how many history lines go into the prompt block.
const formatHistoryTail = 5

// Format renders the context as a deterministic prompt fragment so the model
// does not re-ask questions the lead already answered. Returns "" when the
// context holds nothing worth injecting.
func Format(c Context) string {
	var sb strings.Builder

	if len(c.Lead) > 0 {
		sb.WriteString("## Dados do lead\n")
		keys := make([]string, 0, len(c.Lead))
		for k := range c.Lead {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString("- ")
			sb.WriteString(k)
			sb.WriteString(": ")
			sb.WriteString(c.Lead[k])
			sb.WriteString("\n")
		}
	}

	if c.Interesse.Principal != "" || len(c.Interesse.Secundarios) > 0 || c.Interesse.Detalhes != "" {
		sb.WriteString("## Interesse\n")
		if c.Interesse.Principal != "" {
			sb.WriteString("- Principal: " + c.Interesse.Principal + "\n")
		}
		if len(c.Interesse.Secundarios) > 0 {
			sb.WriteString("- Secundarios: " + strings.Join(c.Interesse.Secundarios, ", ") + "\n")
		}
		if c.Interesse.Detalhes != "" {
			sb.WriteString("- Detalhes: " + c.Interesse.Detalhes + "\n")
		}
	}

	if len(c.Qualificacao.PerguntasRespondidas) > 0 || len(c.Qualificacao.InformacoesPendentes) > 0 || c.Qualificacao.Nivel != "" {
		sb.WriteString("## Qualificacao\n")
		if c.Qualificacao.Nivel != "" {
			sb.WriteString("- Nivel: " + c.Qualificacao.Nivel + "\n")
		}
		if len(c.Qualificacao.PerguntasRespondidas) > 0 {
			sb.WriteString("- Ja respondido (NAO pergunte novamente): " + strings.Join(c.Qualificacao.PerguntasRespondidas, "; ") + "\n")
		}
		if len(c.Qualificacao.InformacoesPendentes) > 0 {
			sb.WriteString("- Ainda falta descobrir: " + strings.Join(c.Qualificacao.InformacoesPendentes, "; ") + "\n")
		}
	}

	if c.Situacao.ProblemaRelatado != "" || c.Situacao.Urgencia != "" || c.Situacao.Expectativas != "" {
		sb.WriteString("## Situacao\n")
		if c.Situacao.ProblemaRelatado != "" {
			sb.WriteString("- Problema: " + c.Situacao.ProblemaRelatado + "\n")
		}
		if c.Situacao.Urgencia != "" {
			sb.WriteString("- Urgencia: " + c.Situacao.Urgencia + "\n")
		}
		if c.Situacao.Expectativas != "" {
			sb.WriteString("- Expectativas: " + c.Situacao.Expectativas + "\n")
		}
	}

	if len(c.Objecoes) > 0 {
		sb.WriteString("## Objecoes levantadas\n")
		for _, o := range c.Objecoes {
			sb.WriteString("- " + o + "\n")
		}
	}

	if len(c.HistoricoResumido) > 0 {
		sb.WriteString("## Historico recente\n")
		tail := c.HistoricoResumido
		if len(tail) > formatHistoryTail {
			tail = tail[len(tail)-formatHistoryTail:]
		}
		for _, h := range tail {
			sb.WriteString("- " + h + "\n")
		}
	}

	return strings.TrimSpace(sb.String())
}
