package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"storyforge.app/story-forge/internal/apperr"
	"storyforge.app/story-forge/internal/retry"
)

const defaultGeminiModel = "gemini-1.5-flash-latest"

// Gemini implements Generator with the Google generative AI SDK.
type Gemini struct {
	client *genai.Client
	model  string
	policy retry.Policy
}

func NewGemini(ctx context.Context, apiKey, model string, policy retry.Policy) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, apperr.Config("GEMINI_API_KEY is not configured")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{
		client: client,
		model:  firstNonEmpty(model, defaultGeminiModel),
		policy: policy,
	}, nil
}

func (g *Gemini) Close() {
	if g.client != nil {
		if err := g.client.Close(); err != nil {
			slog.Warn("error closing GenAI client", "error", err)
		}
	}
}

func (g *Gemini) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	model := g.client.GenerativeModel(firstNonEmpty(req.Model, g.model))
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemPrompt)},
		}
	}
	model.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, tool := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  toGenaiSchema(tool.Parameters),
			})
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	session := model.StartChat()
	for _, m := range req.History {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	var resp *genai.GenerateContentResponse
	err := g.policy.Do(ctx, "gemini chat", func(ctx context.Context) error {
		var err error
		resp, err = session.SendMessage(ctx, genai.Text(req.UserMessage))
		return mapGeminiError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &apperr.UpstreamError{Vendor: "Gemini", Status: 502, Message: "empty candidates"}
	}

	completion := &Completion{}
	var text strings.Builder
	for i, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			completion.ToolCalls = append(completion.ToolCalls, geminiToolCall(i, p))
		}
	}
	completion.Text = text.String()
	return completion, nil
}

// mapGeminiError converts SDK failures into UpstreamError carrying an HTTP
// status, translating gRPC codes where the transport did not report one.
func mapGeminiError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.HTTPCode()
		if status <= 0 && apiErr.GRPCStatus() != nil {
			status = httpStatusFromCode(apiErr.GRPCStatus().Code())
		}
		msg := apiErr.Reason()
		if st := apiErr.GRPCStatus(); st != nil && st.Message() != "" {
			msg = st.Message()
		}
		if msg == "" {
			msg = apiErr.Error()
		}
		return &apperr.UpstreamError{Vendor: "Gemini", Status: status, Message: msg}
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &apperr.UpstreamError{Vendor: "Gemini", Status: gErr.Code, Body: gErr.Body, Message: gErr.Message}
	}
	return err
}

func httpStatusFromCode(code codes.Code) int {
	switch code {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Unimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func geminiToolCall(index int, fc genai.FunctionCall) ToolCall {
	args, err := json.Marshal(fc.Args)
	if err != nil {
		args = []byte("{}")
	}
	return ToolCall{ID: fmt.Sprintf("gemini-call-%d", index), Name: fc.Name, Arguments: string(args)}
}

func toGenaiSchema(p Param) *genai.Schema {
	schema := &genai.Schema{
		Type:        genaiType(p.Type),
		Description: p.Description,
		Enum:        p.Enum,
		Required:    p.Required,
	}
	if p.Items != nil {
		schema.Items = toGenaiSchema(*p.Items)
	}
	if len(p.Properties) > 0 {
		schema.Properties = make(map[string]*genai.Schema, len(p.Properties))
		for name, prop := range p.Properties {
			schema.Properties[name] = toGenaiSchema(prop)
		}
	}
	return schema
}

func genaiType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}
