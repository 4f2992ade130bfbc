package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rhuss/chatrelay/pkg/api"
	"github.com/rhuss/chatrelay/pkg/relay"
)

// defaultSystemPrompt steers the model away from narrating its reasoning.
const defaultSystemPrompt = "You are a helpful assistant. Provide direct, clear answers without showing your reasoning process."

const emptyReply = "Sorry, I couldn't generate a response."

var exitWords = map[string]bool{"quit": true, "exit": true, "bye": true, "q": true}

// errReplyShown marks a failure whose error text was already streamed to
// the terminal in place of the reply.
var errReplyShown = errors.New("error reply shown")

type chatOptions struct {
	system    string
	maxTokens int
	noStream  bool
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var co chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the configured model in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if co.maxTokens == 0 {
				co.maxTokens = opts.cfg.Relay.MaxTokens
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			inv, err := newInvoker(ctx, opts.cfg)
			if err != nil {
				return fmt.Errorf("connecting to upstream: %w", err)
			}
			rc := opts.cfg.RelayClientConfig()
			client, err := relay.New(inv, rc)
			if err != nil {
				return err
			}
			defer client.Close()

			return runREPL(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), client, co)
		},
	}
	cmd.Flags().StringVar(&co.system, "system", defaultSystemPrompt, "system prompt sent with every turn")
	cmd.Flags().IntVar(&co.maxTokens, "max-tokens", 0, "completion budget per turn (default: relay.max_tokens)")
	cmd.Flags().BoolVar(&co.noStream, "no-stream", false, "wait for the full reply instead of streaming fragments")
	return cmd
}

// runREPL reads user turns from in and writes replies to out until an exit
// word, end of input or cancellation of ctx. The full history is sent with
// every turn.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, client *relay.Client, opts chatOptions) error {
	fmt.Fprintln(out, "=== chatrelay Interactive Chat ===")
	fmt.Fprintf(out, "Model: %s via %s\n", client.ModelID(), client.Provider())
	fmt.Fprintln(out, "Type 'quit', 'exit', or 'bye' to end the conversation")
	fmt.Fprintln(out, strings.Repeat("=", 50))

	var conv api.Conversation
	if opts.system != "" {
		conv = append(conv, api.Message{Role: api.RoleSystem, Content: opts.system})
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(out, "\nChat started! Ask me anything...")
	for {
		fmt.Fprint(out, "\nYou: ")

		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\n\nChat interrupted. Goodbye!")
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(out, "\nGoodbye!")
			return nil
		}

		input := strings.TrimSpace(line)
		if exitWords[strings.ToLower(input)] {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}
		if input == "" {
			continue
		}
		conv = append(conv, api.Message{Role: api.RoleUser, Content: input})

		fmt.Fprint(out, "Assistant: ")
		var reply string
		var err error
		if opts.noStream {
			reply, err = completeTurn(ctx, out, client, conv, opts.maxTokens)
		} else {
			reply, err = streamTurn(ctx, out, client, conv, opts.maxTokens)
		}

		switch {
		case ctx.Err() != nil:
			fmt.Fprintln(out, "\n\nChat interrupted. Goodbye!")
			return nil
		case errors.Is(err, errReplyShown):
		case err != nil:
			fmt.Fprintf(out, "\nError: %v\n", err)
		case reply == "":
			fmt.Fprintln(out, emptyReply)
		default:
			conv = append(conv, api.Message{Role: api.RoleAssistant, Content: reply})
		}
	}
}

// completeTurn prints the full reply once it is available.
func completeTurn(ctx context.Context, out io.Writer, client *relay.Client, conv api.Conversation, maxTokens int) (string, error) {
	reply, err := client.TryComplete(ctx, conv, maxTokens)
	if err != nil {
		return "", err
	}
	if reply != "" {
		fmt.Fprintln(out, reply)
	}
	return reply, nil
}

// streamTurn prints fragments as they arrive and returns their concatenation.
func streamTurn(ctx context.Context, out io.Writer, client *relay.Client, conv api.Conversation, maxTokens int) (string, error) {
	st := client.Stream(ctx, conv, maxTokens)
	defer st.Close()

	var b strings.Builder
	for frag := range st.Fragments() {
		fmt.Fprint(out, frag)
		b.WriteString(frag)
	}
	if b.Len() > 0 {
		fmt.Fprintln(out)
	}

	if err := st.Err(); err != nil {
		return "", err
	}
	if st.FallbackErr() != nil {
		return "", errReplyShown
	}
	return b.String(), nil
}
