package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/zapleads/zapleads/internal/models"
)

// DefaultHistoryLimit bounds the per-lead message history sent to the model.
const DefaultHistoryLimit = 30

// defaultSystemPrompt defines the qualification funnel and the strict JSON
// reply contract. The funnel collects name, age and desired plan, then closes.
const defaultSystemPrompt = `Você é um assistente de vendas de planos de saúde conversando pelo WhatsApp.
Conduza o cliente por um funil de qualificação curto: cumprimente, pergunte o nome,
a idade e qual plano deseja (Essencial, Completo ou Premium), e então encerre
agradecendo e avisando que um consultor entrará em contato.

Responda SEMPRE com um único objeto JSON, sem texto fora dele, no formato:
{"text": "mensagem para o cliente",
 "buttons": ["opção 1", "opção 2"],
 "percentual": 0,
 "idade": "",
 "plano": ""}

Regras:
- "buttons" só quando oferecer opções de múltipla escolha; caso contrário, lista vazia.
- "percentual" é o progresso do funil: 10 no início, 40 com nome, 70 com idade, 100 com plano escolhido.
- Preencha "idade" e "plano" assim que o cliente informar; caso contrário, deixe vazios.
- Mensagens curtas, tom amigável, português do Brasil.`

// chatCompletions is the minimal OpenAI surface used by the engine, satisfied
// by openai.Client.Chat.Completions and by test fakes.
type chatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// leadSession holds the engine-side state for one lead.
type leadSession struct {
	history []openai.ChatCompletionMessageParamUnion
	step    models.SessionStep
}

// OpenAIEngine drives the qualification funnel through OpenAI chat completions.
// Conversation history is process-lifetime, keyed by lead ID.
type OpenAIEngine struct {
	chat         chatCompletions
	recorder     QualificationRecorder
	model        string
	systemPrompt string
	historyLimit int

	mu       sync.Mutex
	sessions map[string]*leadSession
}

// EngineOption configures the OpenAI engine.
type EngineOption func(*OpenAIEngine)

// WithModel overrides the chat completion model.
func WithModel(model string) EngineOption {
	return func(e *OpenAIEngine) {
		e.model = model
	}
}

// WithSystemPrompt overrides the funnel system prompt.
func WithSystemPrompt(prompt string) EngineOption {
	return func(e *OpenAIEngine) {
		e.systemPrompt = prompt
	}
}

// NewOpenAIEngine creates an engine backed by the OpenAI API. The recorder
// receives qualification progress as the model reports it; it may be nil when
// progress persistence is handled elsewhere.
func NewOpenAIEngine(apiKey string, recorder QualificationRecorder, opts ...EngineOption) (*OpenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	e := &OpenAIEngine{
		chat:         &client.Chat.Completions,
		recorder:     recorder,
		model:        openai.ChatModelGPT4oMini,
		systemPrompt: defaultSystemPrompt,
		historyLimit: DefaultHistoryLimit,
		sessions:     make(map[string]*leadSession),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// newEngineWithChat builds an engine around an injected chat service, for tests.
func newEngineWithChat(chat chatCompletions, recorder QualificationRecorder) *OpenAIEngine {
	return &OpenAIEngine{
		chat:         chat,
		recorder:     recorder,
		model:        openai.ChatModelGPT4oMini,
		systemPrompt: defaultSystemPrompt,
		historyLimit: DefaultHistoryLimit,
		sessions:     make(map[string]*leadSession),
	}
}

// modelReply is the strict JSON shape the model must answer with.
type modelReply struct {
	Text       string   `json:"text"`
	Buttons    []string `json:"buttons"`
	Percentual int      `json:"percentual"`
	Idade      string   `json:"idade"`
	Plano      string   `json:"plano"`
}

// ProcessUserMessage advances the funnel with one user message.
func (e *OpenAIEngine) ProcessUserMessage(ctx context.Context, leadID, text string) (models.EngineReply, error) {
	messages := e.snapshotMessages(leadID, text)

	resp, err := e.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:    e.model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("OpenAIEngine chat completion failed", "error", err, "lead_id", leadID)
		return models.EngineReply{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.EngineReply{}, fmt.Errorf("no choices returned")
	}
	content := resp.Choices[0].Message.Content

	parsed, err := parseModelReply(content)
	if err != nil {
		slog.Error("OpenAIEngine could not parse model reply", "error", err, "lead_id", leadID)
		return models.EngineReply{}, fmt.Errorf("invalid model reply: %w", err)
	}

	e.commit(leadID, text, content, parsed)

	if e.recorder != nil && parsed.Percentual > 0 {
		if err := e.recorder.UpdateQualification(ctx, leadID, parsed.Percentual, parsed.Idade, parsed.Plano); err != nil {
			// Progress persistence is best-effort; the reply still goes out.
			slog.Error("OpenAIEngine failed to record qualification", "error", err, "lead_id", leadID)
		}
	}

	reply := models.EngineReply{Text: parsed.Text}
	for _, label := range parsed.Buttons {
		reply.Buttons = append(reply.Buttons, models.Button{Label: label})
	}
	slog.Debug("OpenAIEngine reply ready", "lead_id", leadID, "buttons", len(reply.Buttons), "percentual", parsed.Percentual)
	return reply, nil
}

// snapshotMessages appends the user message to the lead's history and returns
// the message list for the completion call. The lock is not held during I/O.
func (e *OpenAIEngine) snapshotMessages(leadID, text string) []openai.ChatCompletionMessageParamUnion {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess := e.session(leadID)
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(sess.history)+2)
	messages = append(messages, openai.SystemMessage(e.systemPrompt))
	messages = append(messages, sess.history...)
	messages = append(messages, openai.UserMessage(text))
	return messages
}

// commit records the exchange in the lead's history and updates the step.
func (e *OpenAIEngine) commit(leadID, userText, assistantContent string, parsed modelReply) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess := e.session(leadID)
	sess.history = append(sess.history, openai.UserMessage(userText), openai.AssistantMessage(assistantContent))
	if len(sess.history) > e.historyLimit {
		sess.history = sess.history[len(sess.history)-e.historyLimit:]
	}
	if len(parsed.Buttons) > 0 && parsed.Percentual < 100 {
		sess.step = models.StepAwaitingChoice
	} else {
		sess.step = models.StepIdle
	}
}

// session returns the lead's session, creating it if needed. Caller holds mu.
func (e *OpenAIEngine) session(leadID string) *leadSession {
	sess, ok := e.sessions[leadID]
	if !ok {
		sess = &leadSession{step: models.StepIdle}
		e.sessions[leadID] = sess
	}
	return sess
}

// GetOrCreateSession returns the engine-side session snapshot for a lead.
func (e *OpenAIEngine) GetOrCreateSession(ctx context.Context, leadID string) (models.SessionInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.SessionInfo{Step: e.session(leadID).step}, nil
}

// ResetSession discards the engine-side conversation state for a lead.
func (e *OpenAIEngine) ResetSession(ctx context.Context, leadID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, leadID)
	return nil
}

// parseModelReply decodes the model's JSON answer, tolerating markdown code
// fences around the object.
func parseModelReply(content string) (modelReply, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	var parsed modelReply
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return modelReply{}, err
	}
	if parsed.Text == "" {
		return modelReply{}, fmt.Errorf("reply text is empty")
	}
	if parsed.Percentual < 0 {
		parsed.Percentual = 0
	}
	if parsed.Percentual > 100 {
		parsed.Percentual = 100
	}
	return parsed, nil
}
