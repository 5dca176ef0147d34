package contextmem

import (
	"encoding/json"
	"strings"
)

// ExtractionPrompt builds the secondary LLM call that distills only the new
// facts of a turn into the Context shape.
func ExtractionPrompt(existing Context, userMessage, agentReply string) string {
	existingJSON, err := json.Marshal(existing)
	if err != nil {
		existingJSON = []byte("{}")
	}
	var sb strings.Builder
	sb.WriteString("Voce mantem a memoria estruturada de uma conversa de atendimento.\n")
	sb.WriteString("Contexto ja conhecido (NAO repita nada daqui):\n")
	sb.Write(existingJSON)
	sb.WriteString("\n\nUltima mensagem do cliente:\n")
	sb.WriteString(userMessage)
	sb.WriteString("\n\nResposta do agente:\n")
	sb.WriteString(agentReply)
	sb.WriteString("\n\nResponda APENAS com um objeto JSON contendo somente os fatos NOVOS, ")
	sb.WriteString("no mesmo formato do contexto acima (lead, interesse, qualificacao, ")
	sb.WriteString("situacao, objecoes, historicoResumido). Sem explicacoes, sem markdown. ")
	sb.WriteString("Se nada de novo foi aprendido, responda {}.")
	return sb.String()
}

// ParseExtraction defensively parses the extraction model output. It strips
// markdown code fences and brackets to the first "{" through the last "}".
// A false return means the turn proceeds without a context update.
func ParseExtraction(raw string) (Context, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return Context{}, false
	}
	cleaned = cleaned[start : end+1]

	var delta Context
	if err := json.Unmarshal([]byte(cleaned), &delta); err != nil {
		return Context{}, false
	}
	return delta, true
}

// Decode restores a persisted context from conversation state metadata.
func Decode(payload []byte) Context {
	if len(payload) == 0 {
		return Skeleton()
	}
	var c Context
	if err := json.Unmarshal(payload, &c); err != nil {
		return Skeleton()
	}
	if c.Lead == nil {
		c.Lead = map[string]string{}
	}
	return c
}

// Encode serializes a context for persistence.
func Encode(c Context) []byte {
	payload, err := json.Marshal(c)
	if err != nil {
		return []byte("{}")
	}
	return payload
}
