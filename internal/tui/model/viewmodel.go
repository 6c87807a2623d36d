// Package model caches daemon state for the views.
package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/matheus3301/rentchat/internal/api"
	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/chat"
	"github.com/matheus3301/rentchat/internal/status"
	"github.com/matheus3301/rentchat/internal/tui/ui"
)

// Daemon is the part of api.Client the TUI uses.
type Daemon interface {
	ListConversations(ctx context.Context) ([]api.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]api.Message, error)
	OpenConversation(ctx context.Context, viewID, conversationID string) error
	CloseConversation(ctx context.Context, viewID, conversationID string) error
	SendMessage(ctx context.Context, conversationID, content string) (string, error)
	ResendMessage(ctx context.Context, correlationID string) (string, error)
	CreateConversation(ctx context.Context, subject, initialMessage string) (string, error)
	GetStatus(ctx context.Context) (*api.GetStatusResponse, error)
}

var _ Daemon = (*api.Client)(nil)

// ErrNoConversation is returned by thread actions while no conversation is open.
var ErrNoConversation = errors.New("no conversation open")

// Refresh tells the app which parts of the model to reload after an event.
type Refresh struct {
	List   bool
	Thread bool
	Status bool
}

// ViewModel caches what the daemon reports. It never changes conversation
// or message state itself; it asks the daemon and reloads.
type ViewModel struct {
	mu sync.RWMutex

	daemon        Daemon
	viewID        string
	conversations []api.Conversation
	messages      []api.Message
	active        string
	status        *api.GetStatusResponse

	Flash *ui.FlashModel
}

// NewViewModel creates a view model backed by the daemon under a fresh view
// id. The app attaches the view with WatchEvents before opening anything.
func NewViewModel(d Daemon) *ViewModel {
	return &ViewModel{daemon: d, viewID: uuid.NewString(), Flash: ui.NewFlashModel()}
}

// ViewID identifies this view to the daemon.
func (vm *ViewModel) ViewID() string {
	return vm.viewID
}

// LoadConversations refreshes the conversation list.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	convs, err := vm.daemon.ListConversations(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.conversations = convs
	vm.mu.Unlock()
	return nil
}

// LoadMessages refreshes the open conversation's thread.
func (vm *ViewModel) LoadMessages(ctx context.Context) error {
	id := vm.Active()
	if id == "" {
		return nil
	}
	msgs, err := vm.daemon.ListMessages(ctx, id)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	// The user may have switched conversations while the call ran.
	if vm.active == id {
		vm.messages = msgs
	}
	vm.mu.Unlock()
	return nil
}

// LoadStatus refreshes the session status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.daemon.GetStatus(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = st
	vm.mu.Unlock()
	return nil
}

// Open makes id the open conversation; the daemon starts polling it and
// marks it read.
func (vm *ViewModel) Open(ctx context.Context, id string) error {
	if err := vm.daemon.OpenConversation(ctx, vm.viewID, id); err != nil {
		return err
	}
	vm.mu.Lock()
	if vm.active != id {
		vm.messages = nil
	}
	vm.active = id
	vm.mu.Unlock()
	return vm.LoadMessages(ctx)
}

// Reopen opens the current conversation again after the view was
// re-attached; the daemon closed it when the previous stream ended.
func (vm *ViewModel) Reopen(ctx context.Context) error {
	id := vm.Active()
	if id == "" {
		return nil
	}
	return vm.daemon.OpenConversation(ctx, vm.viewID, id)
}

// Close leaves the open conversation.
func (vm *ViewModel) Close(ctx context.Context) error {
	vm.mu.Lock()
	id := vm.active
	vm.active = ""
	vm.messages = nil
	vm.mu.Unlock()
	if id == "" {
		return nil
	}
	return vm.daemon.CloseConversation(ctx, vm.viewID, id)
}

// Send posts text to the open conversation.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	id := vm.Active()
	if id == "" {
		return ErrNoConversation
	}
	if _, err := vm.daemon.SendMessage(ctx, id, text); err != nil {
		return err
	}
	return vm.LoadMessages(ctx)
}

// ResendLastFailed retries the most recent failed message of the open
// conversation.
func (vm *ViewModel) ResendLastFailed(ctx context.Context) error {
	if vm.Active() == "" {
		return ErrNoConversation
	}
	corr := ""
	for _, m := range vm.Messages() {
		if m.State == chat.Failed.String() {
			corr = m.CorrelationID
		}
	}
	if corr == "" {
		return errors.New("no failed message to resend")
	}
	return vm.Resend(ctx, corr)
}

// Resend retries one failed message.
func (vm *ViewModel) Resend(ctx context.Context, correlationID string) error {
	if _, err := vm.daemon.ResendMessage(ctx, correlationID); err != nil {
		return err
	}
	return vm.LoadMessages(ctx)
}

// Create starts a conversation and returns its id.
func (vm *ViewModel) Create(ctx context.Context, subject, message string) (string, error) {
	id, err := vm.daemon.CreateConversation(ctx, subject, message)
	if err != nil {
		return "", err
	}
	return id, vm.LoadConversations(ctx)
}

// Apply decides what to reload for a daemon event and raises flashes for
// the ones the user must notice.
func (vm *ViewModel) Apply(evt *api.Event) Refresh {
	active := vm.Active()
	conv := evt.Payload["conversation_id"]

	switch evt.Kind {
	case bus.ConversationUpdated:
		return Refresh{List: true, Status: true}
	case bus.ReceiptMarked:
		return Refresh{List: true, Status: true, Thread: conv == active}
	case bus.MessageUpserted, bus.MessageSendAck:
		return Refresh{Thread: conv != "" && conv == active}
	case bus.MessageSendFailed:
		vm.Flash.Warn(fmt.Sprintf("message to conversation %s failed: %s (r to resend)", conv, evt.Payload["error"]))
		return Refresh{Thread: conv == active}
	case bus.SessionUnauthorized:
		vm.Flash.Pin(ui.FlashErr, "session rejected by the portal; run rentchatctl login")
		return Refresh{Status: true}
	case bus.SessionStatus:
		if status.State(evt.Payload["to"]).Serving() {
			vm.Flash.Unpin()
		} else {
			vm.Flash.Pin(ui.FlashErr, fmt.Sprintf("session %s; run rentchatctl login", strings.ToLower(evt.Payload["to"])))
		}
		return Refresh{Status: true}
	}
	return Refresh{}
}

// Conversations returns the cached list.
func (vm *ViewModel) Conversations() []api.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conversations
}

// Conversation returns one cached summary.
func (vm *ViewModel) Conversation(id string) (api.Conversation, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.conversations {
		if c.ID == id {
			return c, true
		}
	}
	return api.Conversation{}, false
}

// Messages returns the cached thread of the open conversation.
func (vm *ViewModel) Messages() []api.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}

// Active returns the open conversation id.
func (vm *ViewModel) Active() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}

// Status returns the cached session status, or nil before the first load.
func (vm *ViewModel) Status() *api.GetStatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}
