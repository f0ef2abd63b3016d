package agent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"
	"github.com/sashabaranov/go-openai"

	"github.com/i474232898/weather-pipeline/internal/common"
	"github.com/i474232898/weather-pipeline/internal/tools"
	"github.com/i474232898/weather-pipeline/internal/weather"
)

// ChatModel is the language model the agent talks to. *openai.Client satisfies it.
type ChatModel interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config tunes the completions the agent makes.
type Config struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// DefaultConfig returns the agent defaults.
func DefaultConfig() Config {
	return Config{
		Model:       openai.GPT4oMini,
		Temperature: 0.7,
		MaxTokens:   1000,
	}
}

// Message is one prior conversation turn.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// ToolCall records one executed tool call.
type ToolCall struct {
	ID        string       `json:"id"`
	Function  string       `json:"function"`
	Arguments string       `json:"arguments"`
	Result    tools.Result `json:"result"`
	Success   bool         `json:"success"`
	// Injected marks calls added by the agent rather than requested by the model.
	Injected bool `json:"injected,omitempty"`
}

// Response is the outcome of one agent turn.
type Response struct {
	Success          bool       `json:"success"`
	Response         string     `json:"response"`
	IsWeatherRelated bool       `json:"is_weather_related"`
	ToolCalls        []ToolCall `json:"tool_calls"`
	Model            string     `json:"model,omitempty"`
	TurnID           string     `json:"turn_id"`
	Error            string     `json:"error,omitempty"`
}

// Health describes the agent's configuration.
type Health struct {
	Status    string   `json:"status"`
	Model     string   `json:"model"`
	Tools     []string `json:"tools"`
	ToolCount int      `json:"tool_count"`
}

// Agent answers weather questions by routing them through the tool registry.
type Agent struct {
	model ChatModel
	tools *tools.Registry
	cfg   Config
}

// New creates an Agent. Zero-valued config fields take their defaults.
func New(model ChatModel, registry *tools.Registry, cfg Config) *Agent {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	return &Agent{model: model, tools: registry, cfg: cfg}
}

// Health returns the model name and registered tools.
func (a *Agent) Health() Health {
	names := a.tools.Names()
	return Health{Status: "healthy", Model: a.cfg.Model, Tools: names, ToolCount: len(names)}
}

// Process answers one user message. It never returns an error: failures
// produce an apologetic Response with Success false.
func (a *Agent) Process(ctx context.Context, message string, history []Message) Response {
	turnID := ulid.Make().String()
	log := slog.With("turn_id", turnID)

	related, err := a.classify(ctx, message)
	if err != nil {
		log.Warn("agent: classification failed; treating query as weather-related", "err", err)
	}
	if !related {
		log.Info("agent: refused off-topic query")
		return Response{
			Success:          true,
			Response:         RefusalText,
			IsWeatherRelated: false,
			ToolCalls:        []ToolCall{},
			Model:            a.cfg.Model,
			TurnID:           turnID,
		}
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

	log.Info("agent: processing weather query")
	selection, err := a.complete(ctx, openai.ChatCompletionRequest{
		Model:       a.cfg.Model,
		Messages:    messages,
		Tools:       a.tools.Definitions(),
		ToolChoice:  "auto",
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
	if err != nil {
		return a.fail(log, turnID, fmt.Errorf("tool selection: %w", err))
	}

	if len(selection.ToolCalls) == 0 {
		answer := strings.TrimSpace(selection.Content)
		if answer == "" {
			return a.fail(log, turnID, &SynthesisError{Err: errEmptyAnswer})
		}
		return a.answer(turnID, answer, []ToolCall{})
	}

	log.Info("agent: model requested tool calls", "count", len(selection.ToolCalls))
	calls := a.execute(ctx, log, plan(selection.ToolCalls))

	assistant := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: selection.Content,
	}
	for _, c := range calls {
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ToolCall{
			ID:       c.ID,
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: c.Function, Arguments: c.Arguments},
		})
	}
	messages = append(messages, assistant)
	for _, c := range calls {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			ToolCallID: c.ID,
			Name:       c.Function,
			Content:    c.Result.JSON(),
		})
	}

	final, err := a.complete(ctx, openai.ChatCompletionRequest{
		Model:       a.cfg.Model,
		Messages:    messages,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
	if err != nil {
		return a.fail(log, turnID, &SynthesisError{Err: err})
	}
	answer := strings.TrimSpace(final.Content)
	if answer == "" {
		return a.fail(log, turnID, &SynthesisError{Err: errEmptyAnswer})
	}

	return a.answer(turnID, ensureAttribution(answer, calls), calls)
}

func (a *Agent) complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
	resp, err := a.model.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionMessage{}, err
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, errEmptyCompletion
	}
	return resp.Choices[0].Message, nil
}

func (a *Agent) answer(turnID, text string, calls []ToolCall) Response {
	return Response{
		Success:          true,
		Response:         text,
		IsWeatherRelated: true,
		ToolCalls:        calls,
		Model:            a.cfg.Model,
		TurnID:           turnID,
	}
}

func (a *Agent) fail(log *slog.Logger, turnID string, err error) Response {
	log.Error("agent: failed to process query", "err", err)
	return Response{
		Success:          false,
		Response:         ApologyText,
		IsWeatherRelated: true,
		ToolCalls:        []ToolCall{},
		Model:            a.cfg.Model,
		TurnID:           turnID,
		Error:            fmt.Sprintf("failed to process query: %v", err),
	}
}

type plannedCall struct {
	openai.ToolCall
	injected bool
}

func newCallID() string {
	return "call_" + ulid.Make().String()
}

func cityArgs(city string) string {
	b, _ := json.Marshal(tools.CityArgs{City: city})
	return string(b)
}

// plan orders the model's calls by tool priority and puts a storage lookup
// ahead of every live call whose city has none.
func plan(requested []openai.ToolCall) []plannedCall {
	calls := make([]plannedCall, 0, len(requested))
	lookups := make(map[string]bool)
	for _, tc := range requested {
		calls = append(calls, plannedCall{ToolCall: tc})
		if tc.Function.Name == tools.StorageLatest {
			lookups[weather.CityKey(tools.CityOf(tc.Function.Arguments))] = true
		}
	}

	for _, tc := range requested {
		if tc.Function.Name != tools.LiveCurrent {
			continue
		}
		city := tools.CityOf(tc.Function.Arguments)
		key := weather.CityKey(city)
		if city == "" || lookups[key] {
			continue
		}
		lookups[key] = true
		calls = append(calls, plannedCall{
			ToolCall: openai.ToolCall{
				ID:       newCallID(),
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: tools.StorageLatest, Arguments: cityArgs(city)},
			},
			injected: true,
		})
	}

	slices.SortStableFunc(calls, func(x, y plannedCall) int {
		return tools.Priority(x.Function.Name) - tools.Priority(y.Function.Name)
	})
	return calls
}

// execute runs the planned calls in order. A live call is skipped when storage
// already answered for its city; a failed storage lookup with no live call
// planned gets one injected.
func (a *Agent) execute(ctx context.Context, log *slog.Logger, planned []plannedCall) []ToolCall {
	stored := make(map[string]bool)
	failed := make([]string, 0)
	liveFor := make(map[string]bool)
	for _, p := range planned {
		if p.Function.Name == tools.LiveCurrent {
			liveFor[weather.CityKey(tools.CityOf(p.Function.Arguments))] = true
		}
	}

	executed := make([]ToolCall, 0, len(planned))
	run := func(p plannedCall) {
		city := tools.CityOf(p.Function.Arguments)
		key := weather.CityKey(city)

		var res tools.Result
		if p.Function.Name == tools.LiveCurrent && stored[key] {
			res = tools.Result{Success: false, Skipped: true, City: city, Error: "live fetch skipped: stored observation available"}
			log.Info("agent: skipped live fetch", "city", city)
		} else {
			log.Info("agent: executing tool", "tool", p.Function.Name, "city", city, "injected", p.injected)
			res = a.tools.Execute(ctx, p.Function.Name, p.Function.Arguments)
		}

		if p.Function.Name == tools.StorageLatest {
			if res.Success {
				stored[key] = true
			} else if city != "" {
				failed = append(failed, city)
			}
		}

		id := p.ID
		if id == "" {
			id = newCallID()
		}
		executed = append(executed, ToolCall{
			ID:        id,
			Function:  p.Function.Name,
			Arguments: p.Function.Arguments,
			Result:    res,
			Success:   res.Success,
			Injected:  p.injected,
		})
	}

	i := 0
	for ; i < len(planned) && tools.Priority(planned[i].Function.Name) < tools.Priority(tools.LiveCurrent); i++ {
		run(planned[i])
	}

	for _, city := range failed {
		key := weather.CityKey(city)
		if stored[key] || liveFor[key] {
			continue
		}
		liveFor[key] = true
		log.Info("agent: storage lookup failed; falling back to live fetch", "city", city)
		run(plannedCall{
			ToolCall: openai.ToolCall{
				ID:       newCallID(),
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: tools.LiveCurrent, Arguments: cityArgs(city)},
			},
			injected: true,
		})
	}

	for ; i < len(planned); i++ {
		run(planned[i])
	}
	return executed
}

// ensureAttribution appends the data sources used when the answer names none.
func ensureAttribution(answer string, calls []ToolCall) string {
	if common.HasAnyWord(answer, "storage", "stored", "live") {
		return answer
	}

	var sources []string
	for _, c := range calls {
		if c.Success && c.Result.Source != "" && !slices.Contains(sources, c.Result.Source) {
			sources = append(sources, c.Result.Source)
		}
	}
	if len(sources) == 0 {
		return answer
	}
	return answer + "\n\nSource: " + strings.Join(sources, ", ")
}
