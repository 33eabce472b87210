package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devjn1998/projetoEvolutionApiChatWoot/capability"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/workflow"
)

func buildStandardForTest(t *testing.T) *workflow.Workflow {
	t.Helper()
	w, err := Build(KindStandard, Params{
		WorkflowName:   "Agente Vendas",
		PlatformCredID: "cred-platform",
		ModelCredID:    "cred-model",
		SheetsCredID:   "cred-sheets",
		OwnerID:        7,
	})
	require.NoError(t, err)
	return w
}

func TestStandardTemplateCensus(t *testing.T) {
	w := buildStandardForTest(t)

	require.NoError(t, w.Validate())
	require.Len(t, w.Nodes, 11)

	kinds := map[workflow.NodeKind]int{}
	for _, n := range w.Nodes {
		kinds[workflow.ClassifyNode(n)]++
	}
	assert.Equal(t, 1, kinds[workflow.KindTrigger])
	assert.Equal(t, 2, kinds[workflow.KindSet])
	assert.Equal(t, 1, kinds[workflow.KindFilter])
	assert.Equal(t, 1, kinds[workflow.KindAgent])
	assert.Equal(t, 1, kinds[workflow.KindLanguageModel])
	assert.Equal(t, 1, kinds[workflow.KindMemory])
	assert.Equal(t, 2, kinds[workflow.KindTool])
	assert.Equal(t, 1, kinds[workflow.KindMessagingConnector])
	assert.Equal(t, 1, kinds[workflow.KindChannelConnector])
}

func TestStandardTemplateWiring(t *testing.T) {
	w := buildStandardForTest(t)

	main := func(source string) []workflow.Link {
		slots := w.Connections[source][workflow.PortMain]
		require.NotEmpty(t, slots)
		return slots[0]
	}

	assert.Equal(t, "Info", main("Webhook")[0].Node)
	assert.Equal(t, "Normalizar Telefone", main("Info")[0].Node)
	assert.Equal(t, "Filter", main("Normalizar Telefone")[0].Node)
	assert.Equal(t, "AI Agent", main("Filter")[0].Node)

	fanout := main("AI Agent")
	require.Len(t, fanout, 2, "agent output delivers to both channels")
	assert.Equal(t, "Create New Message", fanout[0].Node)
	assert.Equal(t, "Enviar texto", fanout[1].Node)

	assert.Equal(t, "AI Agent", w.Connections["Google Gemini Chat Model"][workflow.PortLanguageModel][0][0].Node)
	assert.Equal(t, "AI Agent", w.Connections["Simple Memory"][workflow.PortMemory][0][0].Node)
	assert.Equal(t, "AI Agent", w.Connections["Buscar Certificado"][workflow.PortTool][0][0].Node)
	assert.Equal(t, "AI Agent", w.Connections["Inserir dados"][workflow.PortTool][0][0].Node)
}

func TestFilterAdmitsOnlyIncomingMessages(t *testing.T) {
	w := buildStandardForTest(t)

	filter := w.NodeByName("Filter")
	require.NotNil(t, filter)

	conditions := filter.Parameters["conditions"].(map[string]any)["conditions"].([]any)
	require.Len(t, conditions, 1)
	cond := conditions[0].(map[string]any)
	assert.Contains(t, cond["leftValue"], "message_type")
	assert.Equal(t, "incoming", cond["rightValue"])
	assert.Equal(t, "equals", cond["operator"].(map[string]any)["operation"])

	// Evaluate the condition against sample inbound events the way the
	// engine would: equals comparison of the payload field vs rightValue.
	samples := []struct {
		messageType string
		want        bool
	}{
		{"incoming", true},
		{"outgoing", false},
		{"template", false},
		{"", false},
	}
	for _, s := range samples {
		passes := s.messageType == cond["rightValue"]
		assert.Equal(t, s.want, passes, "message_type=%q", s.messageType)
	}
}

func TestCredentialNamesAreDeterministic(t *testing.T) {
	first := buildStandardForTest(t)
	second := buildStandardForTest(t)

	refs := func(w *workflow.Workflow) map[string]string {
		out := map[string]string{}
		for _, n := range w.Nodes {
			for credType, ref := range n.Credentials {
				out[n.Name+"/"+credType] = ref.Name
			}
		}
		return out
	}

	got := refs(first)
	assert.Equal(t, got, refs(second), "same inputs yield the same credential names")
	assert.Equal(t, "Chatwoot Credential for Agente Vendas", got["Create New Message/chatwootApi"])
	assert.Equal(t, "Gemini Credential for Agente Vendas", got["Google Gemini Chat Model/googleGenerativeAiApi"])
	assert.Equal(t, "Google Sheets Credential for Agente Vendas", got["Buscar Certificado/googleSheetsOAuth2Api"])
}

func TestNodeIDsAreFreshPerBuild(t *testing.T) {
	first := buildStandardForTest(t)
	second := buildStandardForTest(t)

	seen := map[string]bool{}
	for _, n := range first.Nodes {
		require.NotEmpty(t, n.ID)
		require.False(t, seen[n.ID], "ids unique within a build")
		seen[n.ID] = true
	}
	for _, n := range second.Nodes {
		assert.False(t, seen[n.ID], "ids unique across builds")
	}
}

func TestDetectedTypesFlowIntoCredentialKeys(t *testing.T) {
	w, err := Build(KindStandard, Params{
		WorkflowName: "Agente Generico",
		Types:        capability.Fallback(),
	})
	require.NoError(t, err)

	delivery := w.NodeByName("Create New Message")
	require.NotNil(t, delivery)
	_, ok := delivery.Credentials["httpHeaderAuth"]
	assert.True(t, ok, "generic engines use header auth for the platform connector")

	sheets := w.NodeByName("Buscar Certificado")
	require.NotNil(t, sheets)
	_, ok = sheets.Credentials["googleSheetsOAuth2Api"]
	assert.True(t, ok, "sheets always uses OAuth")
}

func TestUnknownKindFallsBackToStandard(t *testing.T) {
	w, err := Build(Kind("experimental"), Params{WorkflowName: "Agente X"})
	require.NoError(t, err)
	assert.Len(t, w.Nodes, 11)
}

func TestBuildRequiresName(t *testing.T) {
	_, err := Build(KindStandard, Params{})
	require.Error(t, err)
}

func TestMemorySessionKeyUsesNormalizedPhone(t *testing.T) {
	w := buildStandardForTest(t)
	memory := w.NodeByName("Simple Memory")
	require.NotNil(t, memory)
	assert.Equal(t, workflow.SessionKeyExpression, memory.Parameters["sessionKey"])
	assert.Equal(t, "customKey", memory.Parameters["sessionIdType"])
}
