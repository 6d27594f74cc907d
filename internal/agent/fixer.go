package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"mendcore/internal/incident"
)

// Repo is the source-control surface the fixer can touch.
type Repo interface {
	ReadFile(ctx context.Context, path string) (content, sha string, err error)
	WriteFile(ctx context.Context, path, content, message, sha string) (string, error)
}

// Fixer drives an LLM tool-calling loop that reads repository files and
// pushes a source-level fix for an incident. It is strictly additive to
// the playbook pipeline: it can change code, never run it.
type Fixer struct {
	client *openai.Client
	model  string
	repo   Repo
	logger *slog.Logger

	// maxTurns bounds the tool loop so a confused model cannot spin.
	maxTurns int
}

func NewFixer(apiKey, model string, repo Repo, logger *slog.Logger) *Fixer {
	return &Fixer{
		client:   openai.NewClient(apiKey),
		model:    model,
		repo:     repo,
		logger:   logger,
		maxTurns: 8,
	}
}

var fixerTools = []openai.Tool{
	{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        "read_repo_file",
			Description: "Read the current content of a file from the repository before making changes.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"file_path": {"type": "string", "description": "Path to the file to read, no leading slash"}
				},
				"required": ["file_path"]
			}`),
		},
	},
	{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        "push_repo_fix",
			Description: "Push a code fix by committing updated file content to the repository.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"file_path": {"type": "string", "description": "Path to the file to update"},
					"file_content": {"type": "string", "description": "The full updated file content to commit"},
					"commit_message": {"type": "string", "description": "Commit message describing the fix"}
				},
				"required": ["file_path", "file_content", "commit_message"]
			}`),
		},
	},
}

func fixerPrompt(inc *incident.Incident, analysis string) string {
	incJSON, _ := json.MarshalIndent(inc, "", "  ")
	return fmt.Sprintf(`You are a remediation agent. Analyze the incident and push a fix to the repository.

INCIDENT:
%s

ANALYSIS:
%s

Steps you MUST follow:
1. First call read_repo_file to read the actual content of the suspect file.
2. Analyze the file content and identify the defect.
3. Call push_repo_fix with the complete fixed file content.
4. Report what you changed.`, incJSON, analysis)
}

// Fix runs the tool loop to completion and returns the model's final
// report text.
func (f *Fixer) Fix(ctx context.Context, inc *incident.Incident, analysis string) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: fixerPrompt(inc, analysis)},
	}

	for turn := 0; turn < f.maxTurns; turn++ {
		resp, err := f.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    f.model,
			Messages: messages,
			Tools:    fixerTools,
		})
		if err != nil {
			return "", fmt.Errorf("fix agent completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("fix agent returned no choices")
		}

		msg := resp.Choices[0].Message
		messages = append(messages, msg)

		if len(msg.ToolCalls) == 0 {
			if msg.Content == "" {
				return "Remediation complete.", nil
			}
			return msg.Content, nil
		}

		for _, call := range msg.ToolCalls {
			result := f.dispatchTool(ctx, call.Function.Name, call.Function.Arguments)
			f.logger.Info("fix agent tool call", "tool", call.Function.Name)
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    result,
			})
		}
	}
	return "", errors.New("fix agent exceeded the tool-call limit")
}

type toolResult struct {
	OK        bool   `json:"ok"`
	FilePath  string `json:"file_path,omitempty"`
	Content   string `json:"content,omitempty"`
	CommitSHA string `json:"commit_sha,omitempty"`
	Error     string `json:"error,omitempty"`
}

// dispatchTool executes one tool call against the repo collaborator and
// renders the outcome as JSON for the model. Tool failures are reported
// back to the model rather than aborting the loop.
func (f *Fixer) dispatchTool(ctx context.Context, name, rawArgs string) string {
	encode := func(r toolResult) string {
		b, _ := json.Marshal(r)
		return string(b)
	}

	switch name {
	case "read_repo_file":
		var args struct {
			FilePath string `json:"file_path"`
		}
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil || args.FilePath == "" {
			return encode(toolResult{Error: "invalid arguments for read_repo_file"})
		}
		content, _, err := f.repo.ReadFile(ctx, args.FilePath)
		if err != nil {
			return encode(toolResult{Error: err.Error()})
		}
		return encode(toolResult{OK: true, FilePath: args.FilePath, Content: content})

	case "push_repo_fix":
		var args struct {
			FilePath      string `json:"file_path"`
			FileContent   string `json:"file_content"`
			CommitMessage string `json:"commit_message"`
		}
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil || args.FilePath == "" {
			return encode(toolResult{Error: "invalid arguments for push_repo_fix"})
		}
		_, sha, err := f.repo.ReadFile(ctx, args.FilePath)
		if err != nil {
			return encode(toolResult{Error: err.Error()})
		}
		commit, err := f.repo.WriteFile(ctx, args.FilePath, args.FileContent, args.CommitMessage, sha)
		if err != nil {
			return encode(toolResult{Error: err.Error()})
		}
		return encode(toolResult{OK: true, FilePath: args.FilePath, CommitSHA: commit})
	}
	return encode(toolResult{Error: "unknown tool: " + name})
}
