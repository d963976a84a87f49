package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ptacemic/ai-dial-general-purpose-agent/agent"
	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/session"
)

type chatFlags struct {
	message     string
	attachments []string
	showStages  bool
	apiKey      string
	deployment  string
}

func chatCmd(flags *rootFlags) *cobra.Command {
	cf := &chatFlags{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent (interactive unless --message is given)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			a, err := flags.build(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			for _, w := range a.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}

			apiKey := cf.apiKey
			if apiKey == "" {
				apiKey = a.Config.DIAL.APIKey
			}
			c := &chat{
				agent:       a.Agent,
				store:       session.NewInMemoryStore(),
				convID:      core.NewID(),
				apiKey:      apiKey,
				deployment:  cf.deployment,
				showStages:  cf.showStages,
				out:         cmd.OutOrStdout(),
				errOut:      cmd.ErrOrStderr(),
				attachments: fileAttachments(cf.attachments),
			}
			if cf.message != "" {
				return c.send(ctx, cf.message)
			}
			return c.repl(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVarP(&cf.message, "message", "m", "", "send one message and exit")
	cmd.Flags().StringSliceVarP(&cf.attachments, "attach", "a", nil, "DIAL file URL to attach to the first message (repeatable)")
	cmd.Flags().BoolVar(&cf.showStages, "stages", true, "print tool stages to stderr")
	cmd.Flags().StringVar(&cf.apiKey, "api-key", "", "DIAL API key (default: from config)")
	cmd.Flags().StringVar(&cf.deployment, "deployment", "", "override the answering deployment")
	return cmd
}

type chat struct {
	agent       *agent.Agent
	store       *session.InMemoryStore
	convID      string
	apiKey      string
	deployment  string
	showStages  bool
	out         io.Writer
	errOut      io.Writer
	attachments []core.Attachment
}

func (c *chat) repl(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(c.errOut, "Type a message, /reset to start over, /exit to quit.")
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(c.errOut, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			c.store.Delete(c.convID)
			c.convID = core.NewID()
			fmt.Fprintln(c.errOut, "conversation reset")
			continue
		}
		if err := c.send(ctx, line); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(c.errOut, "error: %v\n", err)
		}
	}
}

// send runs one request. The user message and the reply (with its State)
// are kept so the next request restores earlier tool exchanges.
func (c *chat) send(ctx context.Context, text string) error {
	user := core.NewUserMessage(text)
	if len(c.attachments) > 0 {
		user.Attachments = c.attachments
		c.attachments = nil
	}
	msgs := append(c.store.Get(c.convID).Messages, user)

	resp, err := c.agent.HandleRequest(ctx, agent.Request{
		ConversationID: c.convID,
		Messages:       msgs,
		APIKey:         c.apiKey,
		Deployment:     c.deployment,
	}, c.sink())
	fmt.Fprintln(c.out)
	if err != nil {
		return err
	}
	for _, att := range resp.Message.Attachments {
		fmt.Fprintf(c.out, "[attachment] %s %s\n", att.Title, att.URL)
	}
	c.store.Append(c.convID, user, resp.Message)
	return nil
}

func (c *chat) sink() core.ProgressSink {
	var mu sync.Mutex
	return core.FuncSink(func(ev core.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case ev.Kind == core.EventContent:
			fmt.Fprint(c.out, ev.Text)
		case !c.showStages:
		case ev.Kind == core.EventStageOpen:
			fmt.Fprintf(c.errOut, "\n┌ %s\n", ev.StageName)
		case ev.Kind == core.EventStageContent:
			fmt.Fprint(c.errOut, strings.ReplaceAll(ev.Text, "\r", ""))
		case ev.Kind == core.EventStageAttachment && ev.Attachment != nil:
			fmt.Fprintf(c.errOut, "│ attachment: %s %s\n", ev.Attachment.Title, ev.Attachment.URL)
		case ev.Kind == core.EventStageClose:
			fmt.Fprintf(c.errOut, "\n└ %s\n", ev.StageName)
		}
	})
}

func fileAttachments(urls []string) []core.Attachment {
	var out []core.Attachment
	for _, u := range urls {
		name := u
		if i := strings.LastIndex(u, "/"); i >= 0 {
			name = u[i+1:]
		}
		out = append(out, core.Attachment{URL: u, Title: name})
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\n."); i >= 0 {
		return s[:i]
	}
	return s
}
