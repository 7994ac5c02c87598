package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// DraftTimeLayout is the wall-clock format the model is asked to produce.
const DraftTimeLayout = "2006-01-02 15:04"

// Actions the model may pick.
const (
	ActionCreate  = "create_reminder"
	ActionList    = "list_reminders"
	ActionDelete  = "delete_reminder"
	ActionUnknown = "unknown"
)

// ErrNoTime is returned by Draft.Time when the model gave no fire time.
var ErrNoTime = errors.New("no reminder time given")

type Client struct {
	client *openai.Client
	model  string
	now    func() time.Time
}

func New(apiKey, baseURL, model string) *Client {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
		now:    time.Now,
	}
}

// Draft is the model's reading of a free-text request.
type Draft struct {
	Action       string `json:"action"`
	Title        string `json:"title"`
	FireAt       string `json:"fire_at"`
	Index        int    `json:"index"` // 1-based position in the user's list, for delete
	NeedMoreInfo bool   `json:"need_more_info"`
	FollowUp     string `json:"follow_up"`
	Message      string `json:"message"`
	RawResponse  string `json:"-"`
}

// Time parses FireAt in loc.
func (d *Draft) Time(loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(d.FireAt)
	if s == "" {
		return time.Time{}, ErrNoTime
	}
	t, err := time.ParseInLocation(DraftTimeLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse fire_at %q: %w", s, err)
	}
	return t, nil
}

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const systemPromptTemplate = `You turn short requests into reminders for a notes app.

Current time: %s

Pick one action:
- create_reminder: the user wants to be alerted about something at a time
- list_reminders: the user wants to see their reminders
- delete_reminder: the user wants to remove a reminder; set index to its 1-based position in the list they were shown
- unknown: anything else

Rules:
1. Resolve relative times ("tomorrow", "in 3 hours", "next Monday") against the current time and write fire_at as YYYY-MM-DD HH:MM. Never produce a time in the past.
2. title is a short label for the alert, without the time.
3. If a create request lacks either the title or the time, set need_more_info = true and ask for what is missing in follow_up.
4. message is a short friendly reply shown to the user.`

var draftSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"action": {
			"type": "string",
			"enum": ["create_reminder", "list_reminders", "delete_reminder", "unknown"]
		},
		"title": {
			"type": "string",
			"description": "Short label for the alert"
		},
		"fire_at": {
			"type": "string",
			"description": "Absolute local time, YYYY-MM-DD HH:MM, or empty"
		},
		"index": {
			"type": "integer",
			"description": "1-based list position for delete_reminder, 0 otherwise"
		},
		"need_more_info": {
			"type": "boolean"
		},
		"follow_up": {
			"type": "string",
			"description": "Question to ask when need_more_info is true"
		},
		"message": {
			"type": "string"
		}
	},
	"required": ["action", "title", "fire_at", "index", "need_more_info", "follow_up", "message"],
	"additionalProperties": false
}`)

func (c *Client) systemPrompt() string {
	return fmt.Sprintf(systemPromptTemplate, c.now().Format("2006-01-02 15:04 (Monday)"))
}

// ParseReminder reads the conversation so far and returns a draft.
func (c *Client) ParseReminder(ctx context.Context, history []Message) (*Draft, error) {
	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.systemPrompt(),
		},
	}
	for _, msg := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "reminder_draft",
				Schema: draftSchema,
				Strict: true,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call AI API: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from AI")
	}

	content := resp.Choices[0].Message.Content
	draft := &Draft{RawResponse: content}

	if err := json.Unmarshal([]byte(content), draft); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}

	return draft, nil
}
