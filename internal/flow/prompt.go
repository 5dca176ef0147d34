package flow

import (
	"fmt"
	"strings"

	"github.com/zapflowai/zapflow/internal/agents"
	"github.com/zapflowai/zapflow/internal/contextmem"
	"github.com/zapflowai/zapflow/internal/db"
	"github.com/zapflowai/zapflow/internal/llm"
)

// systemPrompt renders the agent persona, the structured memory block, the
// media library and the ground rules for directives into one system
// instruction.
func systemPrompt(profile agents.Profile, memory contextmem.Context, contactName string, mediaKeys []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Voce e %s, um agente de atendimento via WhatsApp.\n\n", profile.Name)
	if profile.Specialty != "" {
		fmt.Fprintf(&b, "Especialidade: %s\n\n", profile.Specialty)
	}
	if profile.Script != "" {
		fmt.Fprintf(&b, "## Roteiro\n%s\n\n", profile.Script)
	}
	if profile.Rules != "" {
		fmt.Fprintf(&b, "## Regras\n%s\n\n", profile.Rules)
	}
	if profile.Faq != "" {
		fmt.Fprintf(&b, "## Perguntas frequentes\n%s\n\n", profile.Faq)
	}
	if profile.CompanyInfo != "" {
		fmt.Fprintf(&b, "## Sobre a empresa\n%s\n\n", profile.CompanyInfo)
	}
	if profile.ContractLink != "" {
		fmt.Fprintf(&b, "Link do contrato: %s\n\n", profile.ContractLink)
	}
	if contactName != "" {
		fmt.Fprintf(&b, "Voce esta falando com %s.\n\n", contactName)
	}
	if block := contextmem.Format(memory); block != "" {
		b.WriteString("# Contexto da conversa\n")
		b.WriteString(block)
		b.WriteString("\n\n")
	}

	if len(mediaKeys) > 0 {
		b.WriteString("## Acervo de midia\n")
		b.WriteString("Arquivos que voce pode enviar incluindo a marcacao no texto:\n")
		for _, k := range mediaKeys {
			fmt.Fprintf(&b, "- {{%s}}\n", k)
		}
		b.WriteString("\n")
	}

	b.WriteString("# Instrucoes de resposta\n")
	b.WriteString("- Responda sempre em portugues, de forma natural e curta como em um chat.\n")
	b.WriteString("- Use as ferramentas disponiveis quando precisar executar uma acao.\n")
	if len(mediaKeys) > 0 {
		b.WriteString("- Para enviar um arquivo do acervo, inclua a marcacao {{tipo:chave}} no texto. Use apenas as chaves listadas.\n")
	}
	b.WriteString("- Nunca invente dados que nao estejam no roteiro ou no contexto.\n")
	return b.String()
}

// historyContents converts stored messages, newest-first as the query returns
// them, into chronological chat contents.
func historyContents(messages []db.Message) []llm.Content {
	out := make([]llm.Content, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		role := "model"
		if m.FromContact {
			role = "user"
		}
		text := db.TextToString(m.Content)
		if text == "" {
			if url := db.TextToString(m.MediaUrl); url != "" {
				text = fmt.Sprintf("[%s: %s]", m.Kind, url)
			} else {
				continue
			}
		}
		out = append(out, llm.Content{Role: role, Parts: []llm.Part{{Text: text}}})
	}
	return out
}

// batchText flattens the inbound batch into the user turn text, with media
// represented by placeholders or transcripts resolved earlier.
func batchText(messages []Message) string {
	var lines []string
	for _, m := range messages {
		switch {
		case strings.TrimSpace(m.Content) != "":
			lines = append(lines, strings.TrimSpace(m.Content))
		case m.MediaURL != "":
			lines = append(lines, fmt.Sprintf("[%s enviado]", m.Type))
		}
	}
	return strings.Join(lines, "\n")
}
