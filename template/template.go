// Package template assembles complete agent workflow documents ready to be
// created on the engine. The standard template wires a webhook-triggered
// message pipeline into an AI agent with a language model, windowed memory,
// spreadsheet tools and two delivery branches.
package template

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/devjn1998/projetoEvolutionApiChatWoot/capability"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/workflow"
)

// Kind selects a workflow template.
type Kind string

// KindStandard is the webhook-to-agent pipeline. Unknown kinds resolve to it.
const KindStandard Kind = "standard"

// Credential display labels used in deterministic credential names.
const (
	LabelPlatform = "Chatwoot"
	LabelModel    = "Gemini"
	LabelSheets   = "Google Sheets"
)

// CredentialName builds the deterministic display name a credential carries
// on the engine. Rebuilding the same workflow reuses the same names, which
// keeps retries from accumulating orphan credentials.
func CredentialName(label, workflowName string) string {
	return fmt.Sprintf("%s Credential for %s", label, workflowName)
}

// Params carries everything a template build needs. Empty Types fields
// default to the native credential types.
type Params struct {
	WorkflowName   string
	PlatformCredID string
	ModelCredID    string
	SheetsCredID   string
	OwnerID        int64
	Types          capability.CredentialTypes
}

func (p *Params) normalize() error {
	if strings.TrimSpace(p.WorkflowName) == "" {
		return fmt.Errorf("template: workflow name is required")
	}
	if p.Types.Platform == "" {
		p.Types.Platform = capability.TypePlatformNative
	}
	if p.Types.Model == "" {
		p.Types.Model = capability.TypeModelNative
	}
	if p.Types.Sheets == "" {
		p.Types.Sheets = capability.TypeSheetsOAuth
	}
	return nil
}

// Build assembles the workflow document for the given template kind.
func Build(kind Kind, p Params) (*workflow.Workflow, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	switch kind {
	case KindStandard:
		return buildStandard(p), nil
	default:
		// Unknown kinds get the standard pipeline rather than an error so
		// stale clients keep working.
		return buildStandard(p), nil
	}
}

const (
	modelName          = "models/gemini-2.5-pro"
	memoryWindowLength = 50

	defaultSheetDocumentID = "1Zk0Q1ufeouzs6YGyK217NG_uJjM7wsvz6K-slY4_D38"
	defaultSheetID         = 1438895352
)

// defaultSystemMessage seeds the agent before the owner saves a custom prompt.
const defaultSystemMessage = "**PERSONALIDADE:**\nprestativa\n\n" +
	"**PAPEL:**\nassistente virtual\n\n" +
	"**INSTRUÇÕES DE CONTEXTO (não exibir automaticamente):**\n" +
	"HOJE É: {{ $now.format('FFFF') }}\n" +
	"TELEFONE DO CONTATO: {{ $('Info').item.json.telefone }}\n" +
	"ID DA CONVERSA: {{ $('Info').item.json.id_conversa }}\n\n" +
	"Use essas informações apenas quando solicitado ou relevante. Não exiba por padrão."

func buildStandard(p Params) *workflow.Workflow {
	credRef := func(id, label string) workflow.CredentialRef {
		return workflow.CredentialRef{ID: id, Name: CredentialName(label, p.WorkflowName)}
	}

	nodes := []workflow.Node{
		{
			ID:          uuid.NewString(),
			Name:        "Webhook",
			Type:        workflow.TypeWebhook,
			TypeVersion: 2,
			Position:    [2]float64{-1220, -100},
			Parameters: map[string]any{
				"httpMethod": "POST",
				"path":       "webhook-placeholder",
				"options":    map[string]any{},
			},
		},
		{
			ID:          uuid.NewString(),
			Name:        "Info",
			Type:        workflow.TypeSet,
			TypeVersion: 2,
			Position:    [2]float64{-1080, -100},
			Parameters: map[string]any{
				"keepOnlySet": true,
				"values": map[string]any{
					"string": []any{
						map[string]any{"name": "instanceName", "value": "={{ $json.body.account.name }}"},
						map[string]any{"name": "accountId", "value": "={{ $json.body.account.id }}"},
						map[string]any{"name": "conversationId", "value": "={{ $json.body.conversation.id }}"},
						map[string]any{"name": "content", "value": "={{ $json.body.content }}"},
					},
					"json":    []any{},
					"number":  []any{},
					"boolean": []any{},
				},
				"options": map[string]any{},
			},
		},
		{
			ID:          uuid.NewString(),
			Name:        "Normalizar Telefone",
			Type:        workflow.TypeSet,
			TypeVersion: 2,
			Position:    [2]float64{-920, -100},
			Parameters: map[string]any{
				"values": map[string]any{
					"string": []any{
						map[string]any{"name": "telefone", "value": workflow.PhoneExpression},
						map[string]any{"name": "id_conversa", "value": "={{ $json.body.conversation.id }}"},
					},
				},
				"options": map[string]any{},
			},
		},
		{
			ID:          uuid.NewString(),
			Name:        "Filter",
			Type:        workflow.TypeFilter,
			TypeVersion: 2.2,
			Position:    [2]float64{-760, -100},
			Parameters: map[string]any{
				"conditions": map[string]any{
					"options": map[string]any{
						"caseSensitive":  true,
						"leftValue":      "",
						"typeValidation": "strict",
						"version":        2,
					},
					"conditions": []any{
						map[string]any{
							"id":         uuid.NewString(),
							"leftValue":  "={{ $('Webhook').item.json.body.message_type }}",
							"rightValue": "incoming",
							"operator": map[string]any{
								"type":      "string",
								"operation": "equals",
								"name":      "filter.operator.equals",
							},
						},
					},
					"combinator": "and",
				},
				"options": map[string]any{},
			},
		},
		{
			ID:          uuid.NewString(),
			Name:        "AI Agent",
			Type:        workflow.TypeAgent,
			TypeVersion: 1.9,
			Position:    [2]float64{-580, -100},
			Parameters: map[string]any{
				"promptType": "define",
				"text":       "={{ $('Info').item.json.content }}",
				"options": map[string]any{
					"systemMessage": defaultSystemMessage,
				},
			},
		},
		{
			ID:          uuid.NewString(),
			Name:        "Google Gemini Chat Model",
			Type:        "@n8n/n8n-nodes-langchain.lmChatGoogleGemini",
			TypeVersion: 1,
			Position:    [2]float64{-760, 220},
			Parameters: map[string]any{
				"modelName": modelName,
				"options":   map[string]any{},
			},
			Credentials: map[string]workflow.CredentialRef{
				p.Types.Model: credRef(p.ModelCredID, LabelModel),
			},
		},
		{
			ID:          uuid.NewString(),
			Name:        "Simple Memory",
			Type:        workflow.TypeMemoryBufferWindow,
			TypeVersion: 1.3,
			Position:    [2]float64{-560, 240},
			Parameters: map[string]any{
				"sessionIdType":       "customKey",
				"sessionKey":          workflow.SessionKeyExpression,
				"contextWindowLength": memoryWindowLength,
			},
		},
		{
			ID:          uuid.NewString(),
			Name:        "Create New Message",
			Type:        workflow.TypeMessagingConnector,
			TypeVersion: 1,
			Position:    [2]float64{-60, -200},
			Parameters: map[string]any{
				"resource":        "Messages",
				"operation":       "Create A New Message In A Conversation",
				"account_id":      "={{ $('Info').item.json.accountId }}",
				"conversation_id": "={{ $('Info').item.json.conversationId }}",
				"content":         "={{ $json.output }}",
				"private":         false,
				"content_type":    "=text",
				"template_params": "{}",
				"requestOptions":  map[string]any{},
			},
			Credentials: map[string]workflow.CredentialRef{
				p.Types.Platform: credRef(p.PlatformCredID, LabelPlatform),
			},
		},
		{
			ID:          uuid.NewString(),
			Name:        "Enviar texto",
			Type:        workflow.TypeChannelConnector,
			TypeVersion: 1,
			Position:    [2]float64{-60, 40},
			Parameters: map[string]any{
				"resource":        "messages-api",
				"operation":       "send-text",
				"instanceName":    "={{ $('Info').item.json.instanceName }}",
				"remoteJid":       "={{ $('Webhook').item.json.body.conversation.messages[0].sender.phone_number }}",
				"messageText":     "={{ $json.output }}",
				"options_message": map[string]any{},
			},
		},
		{
			ID:          uuid.NewString(),
			Name:        "Buscar Certificado",
			Type:        workflow.TypeSheetsTool,
			TypeVersion: 4.6,
			Position:    [2]float64{-300, 260},
			Parameters: map[string]any{
				"documentId": map[string]any{"__rl": true, "value": defaultSheetDocumentID, "mode": "list"},
				"sheetName":  map[string]any{"__rl": true, "value": defaultSheetID, "mode": "list"},
				"options":    map[string]any{},
			},
			Credentials: map[string]workflow.CredentialRef{
				p.Types.Sheets: credRef(p.SheetsCredID, LabelSheets),
			},
		},
		{
			ID:          uuid.NewString(),
			Name:        "Inserir dados",
			Type:        workflow.TypeSheetsTool,
			TypeVersion: 4.6,
			Position:    [2]float64{-60, 320},
			Parameters: map[string]any{
				"operation":  "append",
				"documentId": map[string]any{"__rl": true, "value": defaultSheetDocumentID, "mode": "list"},
				"sheetName":  map[string]any{"__rl": true, "value": defaultSheetID, "mode": "list"},
				"columns": map[string]any{
					"mappingMode": "defineBelow",
					"value": map[string]any{
						"Tipo":                "={{ /*n8n-auto-generated-fromAI-override*/ $fromAI('Tipo', '', 'string') }}",
						"Orgão emissor":      "={{ /*n8n-auto-generated-fromAI-override*/ $fromAI('Org_o_emissor', '', 'string') }}",
						"Numeração":          "={{ /*n8n-auto-generated-fromAI-override*/ $fromAI('Numera__o', '', 'string') }}",
						"Data de vencimento": "={{ /*n8n-auto-generated-fromAI-override*/ $fromAI('Data_de_vencimento', '', 'string') }}",
						"Data alerta":        "={{ /*n8n-auto-generated-fromAI-override*/ $fromAI('Data_alerta', '', 'string') }}",
						"Situação":           "={{ /*n8n-auto-generated-fromAI-override*/ $fromAI('Situa__o', '', 'string') }}",
					},
				},
				"options": map[string]any{},
			},
			Credentials: map[string]workflow.CredentialRef{
				p.Types.Sheets: credRef(p.SheetsCredID, LabelSheets),
			},
		},
	}

	conns := workflow.Connections{}
	conns.Connect("Webhook", workflow.PortMain, "Info")
	conns.Connect("Info", workflow.PortMain, "Normalizar Telefone")
	conns.Connect("Normalizar Telefone", workflow.PortMain, "Filter")
	conns.Connect("Filter", workflow.PortMain, "AI Agent")
	conns.Connect("Google Gemini Chat Model", workflow.PortLanguageModel, "AI Agent")
	conns.Connect("Simple Memory", workflow.PortMemory, "AI Agent")
	conns.Connect("Buscar Certificado", workflow.PortTool, "AI Agent")
	conns.Connect("Inserir dados", workflow.PortTool, "AI Agent")
	conns.Connect("AI Agent", workflow.PortMain, "Create New Message")
	conns.Connect("AI Agent", workflow.PortMain, "Enviar texto")

	return &workflow.Workflow{
		Name:        p.WorkflowName,
		Nodes:       nodes,
		Connections: conns,
		Settings:    map[string]any{},
	}
}
