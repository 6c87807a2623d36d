// Package tui is the terminal client of rentchatd.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/rentchat/internal/api"
	"github.com/matheus3301/rentchat/internal/tui/keys"
	"github.com/matheus3301/rentchat/internal/tui/model"
	"github.com/matheus3301/rentchat/internal/tui/ui"
	"github.com/matheus3301/rentchat/internal/tui/views"
	"github.com/rivo/tview"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

const (
	headerHeight = 5
	promptHeight = 3
	watchRetry   = 2 * time.Second
	closeTimeout = time.Second
)

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	layout   *tview.Flex
	header   *ui.Header
	prompt   *ui.Prompt
	pages    *ui.Pages
	status   *views.StatusBar
	list     *views.ConversationList
	thread   *views.MessageThread
	info     *views.ConversationInfo
	help     *views.HelpView
	registry *keys.Registry
	vm       *model.ViewModel
	client   *api.Client
	session  string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *api.Client, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		header:   ui.NewHeader(theme),
		prompt:   ui.NewPrompt(theme),
		pages:    ui.NewPages(),
		status:   views.NewStatusBar(theme),
		list:     views.NewConversationList(theme),
		thread:   views.NewMessageThread(theme),
		info:     views.NewConversationInfo(theme),
		help:     views.NewHelpView(theme),
		registry: keys.NewRegistry(),
		vm:       model.NewViewModel(c),
		client:   c,
		session:  sessionName,
		ctx:      ctx,
		cancel:   cancel,
	}

	a.status.SetSession(sessionName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':', Label: ":", Description: "Command",
		Handler: func() { a.showPrompt(ui.PromptCommand, "") },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '?', Label: "?", Description: "Help",
		Handler: a.showHelp,
	})

	list := a.list.Name()
	a.registry.Add(list, &keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Label: "q", Description: "Quit",
		Handler: a.Stop,
	})
	a.registry.Add(list, &keys.Action{
		Key: tcell.KeyRune, Rune: '/', Label: "/", Description: "Filter",
		Handler: func() { a.showPrompt(ui.PromptFilter, a.list.Filter()) },
	})
	a.registry.Add(list, &keys.Action{
		Key: tcell.KeyRune, Rune: 'n', Label: "n", Description: "New",
		Handler: func() { a.showPrompt(ui.PromptCommand, "new ") },
	})
	a.registry.Add(list, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Label: "i", Description: "Details",
		Handler: func() { a.showInfo(a.list.SelectedID()) },
	})
	for n := 1; n <= 9; n++ {
		a.registry.Add(list, &keys.Action{
			Key: tcell.KeyRune, Rune: rune('0' + n), Hidden: true,
			Handler: func() {
				if id := a.list.ByIndex(n); id != "" {
					a.openConversation(id)
				}
			},
		})
	}

	thread := a.thread.Name()
	a.registry.Add(thread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'c', Label: "c", Description: "Compose",
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.Add(thread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Label: "r", Description: "Resend",
		Handler: a.resendLastFailed,
	})
	a.registry.Add(thread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Label: "i", Description: "Details",
		Handler: func() { a.showInfo(a.vm.Active()) },
	})
}

func (a *App) setupCallbacks() {
	a.list.SetSelectedFunc(func(row, _ int) {
		if id := a.list.ByIndex(row); id != "" {
			a.openConversation(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		go func() {
			if err := a.vm.Send(a.ctx, text); err != nil {
				a.vm.Flash.Err(fmt.Errorf("send: %w", describe(err)))
			}
			a.app.QueueUpdateDraw(a.renderThread)
		}()
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.list.SetFilter(text)
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)
	a.prompt.SetCommands([]string{"open", "new", "resend", "filter", "help", "quit"})

	a.pages.SetOnChange(func(top ui.Component) {
		a.header.SetHints(append(top.Hints(), a.registry.Hints("")...))
		a.app.SetFocus(a.focusTarget(top))
	})
}

func (a *App) setupLayout() {
	a.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.header, headerHeight, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.status, 1, 0, false)

	a.pages.Push(a.list)
	a.app.SetRoot(a.layout, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			a.Stop()
			return nil
		}
		if a.prompt.HasFocus() {
			return event
		}
		if a.thread.Composer().HasFocus() {
			if event.Key() == tcell.KeyEscape {
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
			return event
		}

		top := a.pages.Top()
		if event.Key() == tcell.KeyEscape {
			a.back(top)
			return nil
		}
		if a.registry.HandleEvent(top.Name(), event) {
			return nil
		}
		return event
	})
}

func (a *App) focusTarget(c ui.Component) tview.Primitive {
	if c == a.thread {
		return a.thread.Messages()
	}
	return c
}

// back leaves the top page. Leaving the thread closes the conversation on
// the daemon so it stops polling it.
func (a *App) back(top ui.Component) {
	switch {
	case top == a.thread:
		a.pages.Pop()
		go func() {
			if err := a.vm.Close(a.ctx); err != nil {
				a.vm.Flash.Err(describe(err))
			}
		}()
	case a.pages.Depth() > 1:
		a.pages.Pop()
	case a.list.Filter() != "":
		a.list.SetFilter("")
	}
}

func (a *App) showPrompt(mode ui.PromptMode, text string) {
	a.prompt.Activate(mode)
	a.prompt.SetText(text)
	a.layout.ResizeItem(a.prompt, promptHeight, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.layout.ResizeItem(a.prompt, 0, 0)
	a.app.SetFocus(a.focusTarget(a.pages.Top()))
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "":
	case "quit":
		a.Stop()
	case "help":
		a.showHelp()
	case "open":
		if cmd.Args == "" {
			a.vm.Flash.Warn("usage: open <conversation id>")
			break
		}
		a.openConversation(cmd.Args)
	case "new":
		subject, message := cmd.SubjectAndMessage()
		if subject == "" {
			a.vm.Flash.Warn("usage: new <subject> | <first message>")
			break
		}
		a.createConversation(subject, message)
	case "resend":
		a.resendLastFailed()
	case "filter":
		a.list.SetFilter(cmd.Args)
	default:
		a.vm.Flash.Warn(fmt.Sprintf("unknown command %q", cmd.Name))
	}
	a.renderStatus()
}

func (a *App) openConversation(id string) {
	go func() {
		if err := a.vm.Open(a.ctx, id); err != nil {
			a.vm.Flash.Err(fmt.Errorf("open %s: %w", id, describe(err)))
			a.app.QueueUpdateDraw(a.renderStatus)
			return
		}
		a.app.QueueUpdateDraw(func() {
			for a.pages.Depth() > 1 {
				a.pages.Pop()
			}
			a.renderThread()
			a.pages.Push(a.thread)
		})
	}()
}

func (a *App) createConversation(subject, message string) {
	go func() {
		id, err := a.vm.Create(a.ctx, subject, message)
		if err != nil {
			a.vm.Flash.Err(fmt.Errorf("create: %w", describe(err)))
			a.app.QueueUpdateDraw(a.renderStatus)
			return
		}
		a.vm.Flash.Info("created conversation " + id)
		a.openConversation(id)
	}()
}

func (a *App) resendLastFailed() {
	go func() {
		if err := a.vm.ResendLastFailed(a.ctx); err != nil {
			a.vm.Flash.Warn(describe(err).Error())
		}
		a.app.QueueUpdateDraw(func() {
			a.renderThread()
			a.renderStatus()
		})
	}()
}

func (a *App) showHelp() {
	if a.pages.Top() != a.help {
		a.pages.Push(a.help)
	}
}

func (a *App) showInfo(id string) {
	c, ok := a.vm.Conversation(id)
	if !ok {
		return
	}
	a.info.Update(c)
	a.pages.Push(a.info)
}

func (a *App) renderList() {
	a.list.Update(a.vm.Conversations())
}

func (a *App) renderThread() {
	id := a.vm.Active()
	if id == "" {
		return
	}
	subject := ""
	if c, ok := a.vm.Conversation(id); ok {
		subject = c.Subject
	}
	a.thread.SetConversation(id, subject)
	a.thread.Update(a.vm.Messages())
}

func (a *App) renderStatus() {
	data := ui.SessionData{Session: a.session, Conversations: len(a.vm.Conversations())}
	if st := a.vm.Status(); st != nil {
		data.UserID = st.UserID
		data.State = st.State
		data.Unread = st.TotalUnread
	}
	a.header.SetSession(data)
	a.status.SetState(data.State, data.Unread)
	a.status.SetFlash(a.vm.Flash.Current())
}

// reload fetches what r names and redraws. It blocks on daemon calls and
// must not run on the draw goroutine.
func (a *App) reload(r model.Refresh) {
	var errs []error
	if r.List {
		errs = append(errs, a.vm.LoadConversations(a.ctx))
	}
	if r.Thread {
		errs = append(errs, a.vm.LoadMessages(a.ctx))
	}
	if r.Status {
		errs = append(errs, a.vm.LoadStatus(a.ctx))
	}
	if err := errors.Join(errs...); err != nil && a.ctx.Err() == nil {
		a.vm.Flash.Err(describe(err))
	}
	a.app.QueueUpdateDraw(func() {
		if r.List {
			a.renderList()
		}
		if r.Thread {
			a.renderThread()
		}
		a.renderStatus()
	})
}

// watch follows the daemon's event stream and reconnects when it breaks.
// The stream keeps the list poller mounted while the TUI runs.
func (a *App) watch() {
	for a.ctx.Err() == nil {
		err := a.follow()
		if a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.vm.Flash.Warn("event stream lost: " + describe(err).Error())
			a.app.QueueUpdateDraw(a.renderStatus)
		}
		select {
		case <-time.After(watchRetry):
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) follow() error {
	stream, err := a.client.WatchEvents(a.ctx, &api.WatchEventsRequest{MountList: true, ViewID: a.vm.ViewID()})
	if err != nil {
		return err
	}
	// The first event confirms the view is attached. A conversation left
	// open by an earlier stream was closed by the daemon when it ended.
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	a.vm.Apply(first)
	if err := a.vm.Reopen(a.ctx); err != nil {
		a.vm.Flash.Err(fmt.Errorf("reopen %s: %w", a.vm.Active(), describe(err)))
	}
	// Events may have been missed while disconnected.
	a.reload(model.Refresh{List: true, Thread: true, Status: true})
	for {
		evt, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if r := a.vm.Apply(evt); r != (model.Refresh{}) {
			a.reload(r)
		} else if a.vm.Flash.Current() != nil {
			a.app.QueueUpdateDraw(a.renderStatus)
		}
	}
}

// tick redraws the status line so the clock moves and flashes expire.
func (a *App) tick() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.app.QueueUpdateDraw(func() { a.status.SetFlash(a.vm.Flash.Current()) })
		case <-a.ctx.Done():
			return
		}
	}
}

// Run starts the TUI and blocks until it exits.
func (a *App) Run() error {
	go a.watch()
	go a.tick()
	defer a.cancel()
	return a.app.Run()
}

// Stop closes the open conversation and shuts down the TUI.
func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(a.ctx, closeTimeout)
	defer cancel()
	if err := a.vm.Close(ctx); err != nil {
		a.vm.Flash.Err(describe(err))
	}
	a.cancel()
	a.app.Stop()
}

// describe turns daemon errors into text a user can act on.
func describe(err error) error {
	st, ok := grpcstatus.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return errors.New("session rejected by the portal; run rentchatctl login")
	case codes.Unavailable:
		return errors.New("daemon unavailable")
	default:
		return errors.New(st.Message())
	}
}
