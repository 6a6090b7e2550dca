package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/KamdynS/bedrock-agents/a2a"
	httpserver "github.com/KamdynS/bedrock-agents/server/http"
)

func handleA2A(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: agentctl a2a card|send ...")
	}
	sub := args[0]
	fs := flag.NewFlagSet("a2a "+sub, flag.ContinueOnError)
	token := fs.String("token", os.Getenv("A2A_TOKEN"), "Bearer token")
	session := fs.String("session", "", "Session id; empty starts a new session")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("a2a %s needs an agent url", sub)
	}
	var opts []a2a.ClientOption
	if *token != "" {
		opts = append(opts, a2a.WithToken(a2a.StaticToken(*token)))
	}
	c := a2a.NewClient(fs.Arg(0), opts...)

	switch sub {
	case "card":
		card, err := c.FetchCard(ctx)
		if err != nil {
			return err
		}
		return printCard(out, card)
	case "send":
		text := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
		if text == "" {
			return errors.New("a2a send needs a message")
		}
		sid := *session
		if sid == "" {
			sid = uuid.NewString()
		}
		task, err := c.SendTask(ctx, a2a.TaskSendParams{
			ID:        uuid.NewString(),
			SessionID: sid,
			Message:   a2a.NewTextMessage(a2a.RoleUser, text),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "task %s (session %s): %s\n\n%s\n", task.ID, sid, task.Status.State, task.Text())
		return nil
	default:
		return fmt.Errorf("unknown a2a command %q", sub)
	}
}

func printCard(out io.Writer, card *a2a.AgentCard) error {
	fmt.Fprintf(out, "%s %s\n%s\nurl: %s\n", card.Name, card.Version, card.Description, card.URL)
	if len(card.Skills) > 0 {
		fmt.Fprintln(out, "skills:")
		for _, s := range card.Skills {
			fmt.Fprintf(out, "  %-24s %s\n", s.ID, s.Description)
		}
	}
	return nil
}

func handleChat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	base := fs.String("url", "http://localhost:8080", "Agent server base URL")
	token := fs.String("token", os.Getenv("AGENT_TOKEN"), "Bearer token")
	message := fs.String("m", "", "Send one message and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c := &chatClient{base: strings.TrimRight(*base, "/"), token: *token, session: uuid.NewString(), http: http.DefaultClient}
	if *message != "" {
		reply, err := c.send(ctx, *message)
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	}
	return chatLoop(ctx, c, os.Stdin, os.Stdout, term.IsTerminal(int(os.Stdin.Fd())))
}

type chatClient struct {
	base    string
	token   string
	session string
	http    *http.Client
}

func (c *chatClient) send(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(httpserver.ChatRequest{Message: text, SessionID: c.session})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out httpserver.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("status %d: decode response: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, out.Error)
	}
	return out.Message, nil
}

// chatLoop sends each input line as a turn of one session. Prompts are only shown on a
// terminal so piped input produces just the replies.
func chatLoop(ctx context.Context, c *chatClient, in io.Reader, out io.Writer, interactive bool) error {
	if interactive {
		fmt.Fprintf(out, "session %s, empty line or Ctrl-D to quit\n", c.session)
	}
	sc := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			if interactive {
				return nil
			}
			continue
		}
		reply, err := c.send(ctx, line)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, reply)
	}
}
