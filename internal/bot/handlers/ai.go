package handlers

import (
	"context"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/NoteAlarm/internal/ai"
)

// session holds a multi-turn conversation while the model asks follow-ups.
type session struct {
	History   []ai.Message
	ExpiresAt time.Time
}

const (
	sessionTimeout = 5 * time.Minute
	maxHistoryLen  = 10
)

func (h *Handlers) handleAIMessage(ctx context.Context, msg *tgbotapi.Message) {
	if h.ai == nil {
		h.sendMessage(msg.Chat.ID, "Natural language is not enabled. Use /remind <when> <title>, see /help.")
		return
	}

	userID := msg.From.ID
	s := h.session(userID)
	s.History = append(s.History, ai.Message{Role: "user", Content: msg.Text})
	if len(s.History) > maxHistoryLen {
		s.History = s.History[len(s.History)-maxHistoryLen:]
	}

	draft, err := h.ai.ParseReminder(ctx, s.History)
	if err != nil {
		log.Printf("[bot] failed to parse message from %d: %v", userID, err)
		h.sendMessage(msg.Chat.ID, "Sorry, I could not understand that. Try /remind <when> <title>.")
		return
	}

	reply := h.executeDraft(ctx, userID, draft)
	if draft.NeedMoreInfo {
		s.History = append(s.History, ai.Message{Role: "assistant", Content: reply})
		h.saveSession(userID, s)
	} else {
		h.clearSession(userID)
	}

	if draft.Action == ai.ActionList && !draft.NeedMoreInfo {
		text, keyboard := h.reminderList(ctx, userID)
		if keyboard != nil {
			h.sendWithKeyboard(msg.Chat.ID, text, *keyboard)
			return
		}
		reply = text
	}
	h.sendMessage(msg.Chat.ID, reply)
}

// executeDraft carries out what the model understood and returns the reply.
func (h *Handlers) executeDraft(ctx context.Context, userID int64, draft *ai.Draft) string {
	if draft.NeedMoreInfo {
		if draft.FollowUp != "" {
			return draft.FollowUp
		}
		return "Could you tell me what to remind you about and when?"
	}

	switch draft.Action {
	case ai.ActionCreate:
		fireAt, err := draft.Time(h.loc)
		if err != nil {
			log.Printf("[bot] draft without usable time: %v (raw=%s)", err, draft.RawResponse)
			return "When should I remind you?"
		}
		return h.createReminder(ctx, userID, draft.Title, fireAt)
	case ai.ActionList:
		return ""
	case ai.ActionDelete:
		if draft.Index < 1 {
			return "Which reminder should I delete? Use /reminders to see the numbers."
		}
		return h.deleteByIndex(ctx, userID, draft.Index)
	default:
		if draft.Message != "" {
			return draft.Message
		}
		return "I can set, list and delete reminders. See /help."
	}
}

func (h *Handlers) session(userID int64) *session {
	h.sessionMu.Lock()
	defer h.sessionMu.Unlock()

	if s, ok := h.sessions[userID]; ok && h.now().Before(s.ExpiresAt) {
		return s
	}
	return &session{}
}

func (h *Handlers) saveSession(userID int64, s *session) {
	h.sessionMu.Lock()
	defer h.sessionMu.Unlock()
	s.ExpiresAt = h.now().Add(sessionTimeout)
	h.sessions[userID] = s
}

func (h *Handlers) clearSession(userID int64) {
	h.sessionMu.Lock()
	defer h.sessionMu.Unlock()
	delete(h.sessions, userID)
}
