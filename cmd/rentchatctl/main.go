package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/rentchat/internal/api"
	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/chat"
	"github.com/matheus3301/rentchat/internal/lock"
	"github.com/matheus3301/rentchat/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// login works without a running daemon.
	if args[0] == "login" {
		cmdLogin(sessionName, args[1:])
		return
	}

	c, err := api.Dial(session.SocketPath(sessionName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		namespace := ""
		if len(args) > 1 {
			namespace = args[1]
		}
		cmdWatch(c, namespace, *jsonFlag)
		return
	}
	if args[0] == "open" {
		need(args, 2, "open <conversation-id>")
		cmdOpen(c, args[1], *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "conversations", "ls":
		cmdConversations(ctx, c, *jsonFlag)
	case "messages":
		need(args, 2, "messages <conversation-id>")
		cmdMessages(ctx, c, args[1], *jsonFlag)
	case "send":
		need(args, 3, "send <conversation-id> <text>")
		corr, err := c.SendMessage(ctx, args[1], strings.Join(args[2:], " "))
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Queued %s\n", corr)
	case "resend":
		need(args, 2, "resend <correlation-id>")
		corr, err := c.ResendMessage(ctx, args[1])
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Queued %s\n", corr)
	case "create":
		need(args, 2, "create <subject> [first message]")
		id, err := c.CreateConversation(ctx, args[1], strings.Join(args[2:], " "))
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Created conversation %s\n", id)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: rentchatctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                      Show session status")
	fmt.Fprintln(os.Stderr, "  conversations               List conversations")
	fmt.Fprintln(os.Stderr, "  messages <id>               Show a conversation")
	fmt.Fprintln(os.Stderr, "  open <id>                   Follow a conversation until interrupted, marking it read")
	fmt.Fprintln(os.Stderr, "  send <id> <text>            Send a message")
	fmt.Fprintln(os.Stderr, "  resend <correlation-id>     Retry a failed message")
	fmt.Fprintln(os.Stderr, "  create <subject> [text]     Start a conversation")
	fmt.Fprintln(os.Stderr, "  watch [kind-prefix]         Stream daemon events")
	fmt.Fprintln(os.Stderr, "  login <user-id> <token>     Store credentials and reload the daemon")
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "usage: rentchatctl %s\n", usage)
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func cmdStatus(ctx context.Context, c *api.Client, jsonOut bool) {
	resp, err := c.GetStatus(ctx)
	if err != nil {
		fatal(err)
	}
	healthy, _ := c.Healthy(ctx)
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Session: %s\n", resp.Session)
	fmt.Printf("User:    %s\n", resp.UserID)
	fmt.Printf("Status:  %s (serving: %v)\n", resp.State, healthy)
	fmt.Printf("Unread:  %d\n", resp.TotalUnread)
	if resp.ActiveConversation != "" {
		fmt.Printf("Open:    %s\n", resp.ActiveConversation)
	}
}

func cmdConversations(ctx context.Context, c *api.Client, jsonOut bool) {
	convs, err := c.ListConversations(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(convs)
		return
	}
	if len(convs) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, cv := range convs {
		badge := ""
		if cv.UnreadCount > 0 {
			badge = fmt.Sprintf("(%d)", cv.UnreadCount)
		}
		fmt.Printf("%-8s %-5s %-16s %-28s %s\n", cv.ID, badge, cv.LastActivityAt.Local().Format("2006-01-02 15:04"), cv.Subject, cv.LastMessage)
	}
}

func cmdMessages(ctx context.Context, c *api.Client, id string, jsonOut bool) {
	msgs, err := c.ListMessages(ctx, id)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	for _, m := range msgs {
		who := m.SenderID
		if m.Own {
			who = "me"
		}
		mark := ""
		switch m.State {
		case chat.Pending.String():
			mark = " …"
		case chat.Failed.String():
			mark = " ! " + m.CorrelationID
		}
		fmt.Printf("[%s] %s: %s%s\n", m.SentAt.Local().Format("15:04"), who, m.Content, mark)
	}
}

func cmdWatch(c *api.Client, namespace string, jsonOut bool) {
	stream, err := c.WatchEvents(context.Background(), &api.WatchEventsRequest{Namespace: namespace})
	if err != nil {
		fatal(err)
	}
	for {
		evt, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(evt)
			continue
		}
		fmt.Printf("%s %-24s %v\n", evt.OccurredAt.Local().Format("15:04:05"), evt.Kind, evt.Payload)
	}
}

// cmdOpen keeps the conversation open for as long as the command runs. The
// daemon closes it when the event stream ends, so an interrupted or killed
// ctl never leaves it polled.
func cmdOpen(c *api.Client, id string, jsonOut bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	viewID := uuid.NewString()
	stream, err := c.WatchEvents(ctx, &api.WatchEventsRequest{ViewID: viewID})
	if err != nil {
		fatal(err)
	}
	if _, err := stream.Recv(); err != nil {
		fatal(err)
	}
	if err := c.OpenConversation(ctx, viewID, id); err != nil {
		fatal(err)
	}
	cmdMessages(ctx, c, id, jsonOut)

	for {
		evt, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			fatal(err)
		}
		if evt.Payload["conversation_id"] != id {
			continue
		}
		if jsonOut {
			outputJSON(evt)
			continue
		}
		switch evt.Kind {
		case bus.MessageUpserted, bus.MessageSendAck, bus.MessageSendFailed:
			fmt.Println("--")
			cmdMessages(ctx, c, id, false)
		case bus.ReceiptMarked:
			fmt.Printf("%s marked read\n", evt.OccurredAt.Local().Format("15:04:05"))
		}
	}
}

func cmdLogin(sessionName string, args []string) {
	need(append([]string{"login"}, args...), 3, "login <user-id> <token>")
	if err := session.SaveCredentials(sessionName, chat.Session{UserID: args[0], Token: args[1]}); err != nil {
		fatal(err)
	}
	fmt.Printf("Credentials saved to %s\n", session.CredentialsPath(sessionName))

	h, err := lock.ReadHolder(session.LockPath(sessionName))
	if err != nil || h.PID == 0 {
		return
	}
	if err := syscall.Kill(h.PID, syscall.SIGHUP); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not signal daemon (PID %d): %v\n", h.PID, err)
		return
	}
	fmt.Printf("Daemon (PID %d) reloading credentials\n", h.PID)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
