package template

import (
	"encoding/json"
	"strings"
)

// PromptSections is the structured prompt an owner edits in the UI. The
// static sections become plain text; the two flags control a dynamic context
// block the engine evaluates at execution time.
type PromptSections struct {
	Personality     string `json:"personalidade"`
	Role            string `json:"papel"`
	WelcomeMessage  string `json:"mensagemBoasVindas"`
	ClosingMessage  string `json:"mensagemFinalizacao"`
	ShowDateTime    bool   `json:"exibirHoraData"`
	IdentifyContact bool   `json:"identificarNumeroCliente"`
}

// StaticPart renders the static prompt sections, skipping empty ones.
func (s PromptSections) StaticPart() string {
	var b strings.Builder
	section := func(header, body string) {
		if body == "" {
			return
		}
		b.WriteString("**" + header + ":**\n" + body + "\n\n")
	}
	section("PERSONALIDADE", s.Personality)
	section("PAPEL", s.Role)
	section("MENSAGEM DE BOAS-VINDAS", s.WelcomeMessage)
	section("MENSAGEM QUANDO FINALIZAR UM ATENDIMENTO", s.ClosingMessage)
	return b.String()
}

// BuildStructuredPrompt composes the full prompt value stored in the agent
// node. The result is a single engine-side expression so the dynamic block
// (current date, normalized contact phone, conversation id) resolves at
// execution time; the expression body is treated as opaque text here and
// emitted verbatim.
func BuildStructuredPrompt(s PromptSections) string {
	staticJSON, _ := json.Marshal(s.StaticPart())

	boolLit := func(v bool) string {
		if v {
			return "true"
		}
		return "false"
	}

	return "={{ (() => {\n" +
		"  let out = " + string(staticJSON) + ";\n" +
		"  const exibirHora = " + boolLit(s.ShowDateTime) + ";\n" +
		"  const identificar = " + boolLit(s.IdentifyContact) + ";\n" +
		"  if (exibirHora || identificar) {\n" +
		"    out += '**CONTEXTOS DINÂMICOS (não exibir automaticamente):**\\n';\n" +
		"    if (exibirHora) {\n" +
		"      const agora = $now.format('FFFF');\n" +
		"      out += 'HOJE É: ' + agora + '\\n';\n" +
		"    }\n" +
		"    if (identificar) {\n" +
		"      const telRaw = ($('Normalizar Telefone').item.json.telefone || $('Info').item.json.telefone || $json.body?.conversation?.meta?.sender?.phone || $json.body?.sender?.phone || $json.body?.contact?.phone || '');\n" +
		"      const digits = String(telRaw || '').replace(/\\D+/g, '');\n" +
		"      const withCountry = digits ? (digits.startsWith('55') ? digits : ('55' + digits)) : '';\n" +
		"      const telefone = withCountry ? ('+' + withCountry) : '';\n" +
		"      const idConversa = ($('Info').item.json.id_conversa || $json.body?.conversation?.id || $json.body?.conversation_id || '');\n" +
		"      out += 'TELEFONE DO CONTATO: ' + (telefone || 'não identificado') + '\\n';\n" +
		"      out += 'ID DA CONVERSA: ' + (idConversa || 'não identificado') + '\\n';\n" +
		"    }\n" +
		"    out += '\\nUse essas informações apenas quando solicitado ou relevante. Não exiba por padrão.\\n\\n';\n" +
		"  }\n" +
		"  return out;\n" +
		"})() }}"
}
