package workflow

import "strings"

// Node type identifiers understood by this system. The vocabulary is closed:
// a type outside it classifies as KindOther, and new kinds must be added here
// deliberately rather than matched by accident.
const (
	TypeWebhook = "n8n-nodes-base.webhook"
	TypeSet     = "n8n-nodes-base.set"
	TypeFilter  = "n8n-nodes-base.filter"

	TypeAgent       = "@n8n/n8n-nodes-langchain.agent"
	TypeAgentLegacy = "n8n-nodes-langchain.agent"

	// lmChatPrefix covers the engine's chat-model node family
	// (lmChatGoogleGemini, lmChatOpenAi, ...). The family shares a parameter
	// shape, so it is classified as a unit.
	lmChatPrefix       = "@n8n/n8n-nodes-langchain.lmChat"
	lmChatPrefixLegacy = "n8n-nodes-langchain.lmChat"

	TypeMemoryBufferWindow = "@n8n/n8n-nodes-langchain.memoryBufferWindow"

	TypeSheetsTool = "n8n-nodes-base.googleSheetsTool"

	TypeMessagingConnector = "@devlikeapro/n8n-nodes-chatwoot.chatWoot"
	TypeChannelConnector   = "n8n-nodes-evolution-api.evolutionApi"
)

// NodeKind is the closed classification of node types this system acts on.
type NodeKind int

const (
	// KindOther is any node type outside the known vocabulary
	KindOther NodeKind = iota
	// KindTrigger is the inbound webhook trigger
	KindTrigger
	// KindSet is a field-assignment node
	KindSet
	// KindFilter is a condition node that drops non-matching events
	KindFilter
	// KindAgent is an AI agent node carrying the system prompt
	KindAgent
	// KindLanguageModel is a chat-model attachment node
	KindLanguageModel
	// KindMemory is a conversation-memory attachment node
	KindMemory
	// KindTool is a tool attachment node (sheets lookup/append)
	KindTool
	// KindMessagingConnector delivers agent output to the messaging platform
	KindMessagingConnector
	// KindChannelConnector delivers agent output through the channel gateway
	KindChannelConnector
)

// String returns the string representation of NodeKind
func (k NodeKind) String() string {
	switch k {
	case KindTrigger:
		return "trigger"
	case KindSet:
		return "set"
	case KindFilter:
		return "filter"
	case KindAgent:
		return "agent"
	case KindLanguageModel:
		return "language_model"
	case KindMemory:
		return "memory"
	case KindTool:
		return "tool"
	case KindMessagingConnector:
		return "messaging_connector"
	case KindChannelConnector:
		return "channel_connector"
	default:
		return "other"
	}
}

// ClassifyNode maps a node's type string onto the closed NodeKind vocabulary.
func ClassifyNode(n Node) NodeKind {
	switch n.Type {
	case TypeWebhook:
		return KindTrigger
	case TypeSet:
		return KindSet
	case TypeFilter:
		return KindFilter
	case TypeAgent, TypeAgentLegacy:
		return KindAgent
	case TypeMemoryBufferWindow:
		return KindMemory
	case TypeSheetsTool:
		return KindTool
	case TypeMessagingConnector:
		return KindMessagingConnector
	case TypeChannelConnector:
		return KindChannelConnector
	}
	if strings.HasPrefix(n.Type, lmChatPrefix) || strings.HasPrefix(n.Type, lmChatPrefixLegacy) {
		return KindLanguageModel
	}
	return KindOther
}
