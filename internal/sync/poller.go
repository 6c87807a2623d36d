// Package sync keeps the local view fresh by polling the service.
package sync

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/chat"
	"github.com/matheus3301/rentchat/internal/conversations"
	"github.com/matheus3301/rentchat/internal/loop"
	"github.com/matheus3301/rentchat/internal/messages"
	"github.com/matheus3301/rentchat/internal/unread"
	"go.uber.org/zap"
)

// Default poll intervals.
const (
	DefaultMessageInterval      = 5 * time.Second
	DefaultConversationInterval = 15 * time.Second
)

// Purpose distinguishes the two kinds of poll.
type Purpose string

const (
	PurposeMessages      Purpose = "messages"
	PurposeConversations Purpose = "conversations"
)

// Hooks are called on the loop after poll completions.
type Hooks struct {
	// Unauthorized receives credential rejections. Polling is not retried
	// for the failing job until it is started again.
	Unauthorized func(err error)
	// Succeeded and Failed report poll health.
	Succeeded func(p Purpose)
	Failed    func(p Purpose, err error)
	// ThreadMerged runs after a message poll applied changed entries.
	ThreadMerged func(conversationID string, changed int)
	// ListMerged runs after a conversation list poll.
	ListMerged func(updated []string, at time.Time)
}

// Config holds the poll intervals.
type Config struct {
	MessageInterval      time.Duration
	ConversationInterval time.Duration
}

// job is one running poll schedule. token identifies the Start that created
// it so completions from a stopped schedule are recognised and discarded.
type job struct {
	token    uint64
	ctx      context.Context
	cancel   context.CancelFunc
	timer    *time.Timer
	inFlight bool
}

// Poller fetches message logs for active conversations and the conversation
// list on fixed intervals. All methods must be called on the engine loop.
type Poller struct {
	loop    *loop.Loop
	remote  chat.Remote
	session chat.SessionFunc
	store   *messages.Store
	index   *conversations.Index
	agg     *unread.Aggregator
	bus     *bus.Bus
	logger  *zap.Logger
	cfg     Config
	hooks   Hooks

	threads map[string]*job
	list    *job
	refresh *job
	gen     uint64
	now     func() time.Time
}

// New creates a poller.
func New(lp *loop.Loop, remote chat.Remote, session chat.SessionFunc, store *messages.Store, index *conversations.Index, agg *unread.Aggregator, b *bus.Bus, cfg Config, logger *zap.Logger) *Poller {
	if cfg.MessageInterval <= 0 {
		cfg.MessageInterval = DefaultMessageInterval
	}
	if cfg.ConversationInterval <= 0 {
		cfg.ConversationInterval = DefaultConversationInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		loop:    lp,
		remote:  remote,
		session: session,
		store:   store,
		index:   index,
		agg:     agg,
		bus:     b,
		logger:  logger,
		cfg:     cfg,
		threads: make(map[string]*job),
		now:     time.Now,
	}
}

// SetHooks installs completion hooks.
func (p *Poller) SetHooks(h Hooks) {
	p.hooks = h
}

// Start fetches the conversation's messages immediately and then on every
// MessageInterval until Stop. Starting a running conversation is a no-op.
func (p *Poller) Start(ctx context.Context, conversationID string) bool {
	if _, ok := p.threads[conversationID]; ok {
		return false
	}
	j := p.newJob(ctx)
	p.threads[conversationID] = j
	p.fetchThread(conversationID, j)
	p.schedule(j, p.cfg.MessageInterval, func() { p.tickThread(conversationID, j.token) })
	p.logger.Debug("message polling started", zap.String("conversation_id", conversationID))
	return true
}

// Stop cancels the schedule and any in-flight request for the conversation.
// A response that still arrives is ignored.
func (p *Poller) Stop(conversationID string) bool {
	j, ok := p.threads[conversationID]
	if !ok {
		return false
	}
	delete(p.threads, conversationID)
	j.stop()
	p.logger.Debug("message polling stopped", zap.String("conversation_id", conversationID))
	return true
}

// Running reports whether a conversation is being polled.
func (p *Poller) Running(conversationID string) bool {
	_, ok := p.threads[conversationID]
	return ok
}

// StartList begins refreshing the conversation list.
func (p *Poller) StartList(ctx context.Context) bool {
	if p.list != nil {
		return false
	}
	var j *job
	if p.refresh != nil {
		// Adopt the outstanding one-shot fetch instead of issuing a second one.
		j, p.refresh = p.refresh, nil
	} else {
		j = p.newJob(ctx)
		p.fetchList(j)
	}
	p.list = j
	p.schedule(j, p.cfg.ConversationInterval, func() { p.tickList(j.token) })
	return true
}

// StopList stops refreshing the conversation list.
func (p *Poller) StopList() bool {
	if p.list == nil {
		return false
	}
	p.list.stop()
	p.list = nil
	return true
}

// RefreshList fetches the conversation list now, outside the schedule. It is
// dropped when a list fetch is already outstanding.
func (p *Poller) RefreshList(ctx context.Context) bool {
	if p.list != nil {
		if p.list.inFlight {
			return false
		}
		p.fetchList(p.list)
		return true
	}
	if p.refresh != nil {
		return false
	}
	p.refresh = p.newJob(ctx)
	p.fetchList(p.refresh)
	return true
}

// StopAll cancels every schedule.
func (p *Poller) StopAll() {
	for id := range p.threads {
		p.Stop(id)
	}
	p.StopList()
	if p.refresh != nil {
		p.refresh.stop()
		p.refresh = nil
	}
}

// InFlight reports whether a poll for the given purpose and conversation is
// outstanding. conversationID is ignored for the list.
func (p *Poller) InFlight(purpose Purpose, conversationID string) bool {
	if purpose == PurposeConversations {
		return p.refresh != nil || (p.list != nil && p.list.inFlight)
	}
	j, ok := p.threads[conversationID]
	return ok && j.inFlight
}

func (p *Poller) newJob(ctx context.Context) *job {
	p.gen++
	jctx, cancel := context.WithCancel(ctx)
	return &job{token: p.gen, ctx: jctx, cancel: cancel}
}

func (p *Poller) schedule(j *job, every time.Duration, tick func()) {
	var arm func()
	arm = func() {
		j.timer = time.AfterFunc(every, func() {
			_ = p.loop.Post(func() {
				if j.ctx.Err() != nil {
					return
				}
				tick()
				arm()
			})
		})
	}
	arm()
}

func (j *job) stop() {
	j.cancel()
	if j.timer != nil {
		j.timer.Stop()
	}
}

func (p *Poller) tickThread(conversationID string, token uint64) {
	j, ok := p.threads[conversationID]
	if !ok || j.token != token {
		return
	}
	if j.inFlight {
		p.logger.Debug("message poll skipped, previous still in flight", zap.String("conversation_id", conversationID))
		return
	}
	p.fetchThread(conversationID, j)
}

func (p *Poller) tickList(token uint64) {
	if p.list == nil || p.list.token != token {
		return
	}
	if p.list.inFlight {
		return
	}
	p.fetchList(p.list)
}

func (p *Poller) fetchThread(conversationID string, j *job) {
	j.inFlight = true
	sess := p.session()
	ctx, token := j.ctx, j.token
	go func() {
		msgs, err := p.remote.ListMessages(ctx, sess, conversationID)
		_ = p.loop.Post(func() { p.threadDone(conversationID, token, msgs, err) })
	}()
}

func (p *Poller) threadDone(conversationID string, token uint64, msgs []chat.Message, err error) {
	j, ok := p.threads[conversationID]
	if !ok || j.token != token {
		p.logger.Debug("discarding stale message poll", zap.String("conversation_id", conversationID))
		return
	}
	j.inFlight = false
	if err != nil {
		if p.failed(PurposeMessages, err) {
			p.Stop(conversationID)
		}
		return
	}
	p.succeeded(PurposeMessages)

	changed := p.store.Merge(conversationID, msgs)
	touched := false
	if last, ok := p.store.Last(conversationID); ok && last.State == chat.Sent {
		if cur, known := p.index.Get(conversationID); !known || last.SentAt.After(cur.LastActivityAt) {
			p.index.Touch(conversationID, last.Content, last.SentAt)
			touched = true
		}
	}
	badge := p.agg.Recompute(conversationID) || touched
	if changed > 0 {
		p.bus.Emit(bus.MessageUpserted, "conversation_id", conversationID)
		if p.hooks.ThreadMerged != nil {
			p.hooks.ThreadMerged(conversationID, changed)
		}
	}
	if badge {
		p.bus.Emit(bus.ConversationUpdated, "conversation_id", conversationID)
	}
}

func (p *Poller) fetchList(j *job) {
	j.inFlight = true
	sess := p.session()
	ctx, token := j.ctx, j.token
	go func() {
		convs, err := p.remote.ListConversations(ctx, sess)
		_ = p.loop.Post(func() { p.listDone(token, convs, err) })
	}()
}

func (p *Poller) listDone(token uint64, convs []chat.Conversation, err error) {
	switch {
	case p.list != nil && p.list.token == token:
		p.list.inFlight = false
	case p.refresh != nil && p.refresh.token == token:
		p.refresh.stop()
		p.refresh = nil
	default:
		return
	}
	if err != nil {
		if p.failed(PurposeConversations, err) {
			p.StopList()
		}
		return
	}
	p.succeeded(PurposeConversations)

	var updated []string
	for _, c := range convs {
		applied := p.index.Upsert(c)
		// Loaded logs are authoritative for the badge.
		p.agg.Recompute(c.ID)
		if applied {
			updated = append(updated, c.ID)
			p.bus.Emit(bus.ConversationUpdated, "conversation_id", c.ID)
		}
	}
	if p.hooks.ListMerged != nil {
		p.hooks.ListMerged(updated, p.now())
	}
}

// failed logs a poll error and reports whether the job must stop.
func (p *Poller) failed(purpose Purpose, err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, chat.ErrUnauthorized) {
		p.logger.Warn("poll rejected, session unauthorized", zap.String("purpose", string(purpose)))
		if p.hooks.Unauthorized != nil {
			p.hooks.Unauthorized(err)
		}
		return true
	}
	p.logger.Warn("poll failed, retrying next tick", zap.String("purpose", string(purpose)), zap.Error(err))
	if p.hooks.Failed != nil {
		p.hooks.Failed(purpose, err)
	}
	return false
}

func (p *Poller) succeeded(purpose Purpose) {
	if p.hooks.Succeeded != nil {
		p.hooks.Succeeded(purpose)
	}
}
