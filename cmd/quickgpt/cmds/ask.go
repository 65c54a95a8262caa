package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"

	"github.com/go-go-golems/quickgpt/pkg/relay"
	"github.com/go-go-golems/quickgpt/pkg/settings"
)

func NewAskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [query...]",
		Short: "Ask a single question and stream the answer to the terminal",
		Long:  "Ask a single question. The query is taken from the arguments, or from stdin when stdin is not a terminal.",
		RunE:  runAsk,
	}
	addGenerationFlags(cmd)
	cmd.Flags().String("prompt-name", "", "Name of the configured prompt to use (first prompt when empty)")
	cmd.Flags().Bool("verbose", false, "Ask for a detailed answer right away")
	cmd.Flags().Bool("copy", false, "Copy the final answer to the clipboard")
	cmd.Flags().Bool("no-render", false, "Print raw answer text instead of rendered markdown")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	query, err := readQuery(args, os.Stdin)
	if err != nil {
		return err
	}

	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	prompts, err := s.Prompts()
	if err != nil {
		return err
	}
	promptName, _ := cmd.Flags().GetString("prompt-name")
	prompt := prompts[0]
	if promptName != "" {
		p, ok := settings.FindPrompt(prompts, promptName)
		if !ok {
			return errors.Errorf("unknown prompt %q", promptName)
		}
		prompt = p
	}

	ctrl, err := newController(cmd.Context(), s)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	verbose, _ := cmd.Flags().GetBool("verbose")
	noRender, _ := cmd.Flags().GetBool("no-render")
	copyOut, _ := cmd.Flags().GetBool("copy")
	tty := isatty.IsTerminal(os.Stdout.Fd())
	render := tty && !noRender

	in := relay.StartInput{Query: query, Prompt: prompt.Prompt, PromptName: prompt.Name}
	if verbose {
		in.SystemMessage = relay.VerboseSystemMessage
	}
	id, err := ctrl.StartRequest(ctx, in)
	if err != nil {
		return err
	}

	for {
		final, err := followRequest(ctx, ctrl, id, cmd.OutOrStdout(), render)
		if err != nil {
			return err
		}
		if copyOut {
			if err := clipboard.WriteAll(final.Text); err != nil {
				log.Warn().Err(err).Msg("copy to clipboard")
			}
		}
		if verbose || !tty || !isatty.IsTerminal(os.Stdin.Fd()) {
			return nil
		}
		more, err := askForDetail()
		if err != nil || !more {
			return err
		}
		verbose = true
		id, err = ctrl.StartDetail(ctx, id)
		if err != nil {
			return err
		}
	}
}

// followRequest attaches to id and prints its messages until the request
// reaches a terminal status. Interrupting ctx cancels the request.
func followRequest(ctx context.Context, ctrl *relay.Controller, id string, w io.Writer, render bool) (relay.Request, error) {
	p := newPrinter(w, render, printerQueueSize)
	if err := ctrl.Subscribe(id, p); err != nil {
		return relay.Request{}, err
	}
	defer ctrl.Detach(p)

	select {
	case <-p.done:
	case <-ctx.Done():
		ctrl.Cancel(id, relay.ReasonByUser)
		<-p.done
	}

	req, _ := ctrl.Store().Get(id)
	switch p.last.Type {
	case relay.TypeStreamError:
		return req, errors.New(p.last.Error)
	case relay.TypeStreamAbort:
		return req, errors.New(p.last.Reason)
	}
	if req.Text == "" {
		req.Text = p.last.FullText
	}
	return req, nil
}

func readQuery(args []string, stdin *os.File) (string, error) {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" && !isatty.IsTerminal(stdin.Fd()) {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", errors.Wrap(err, "read query from stdin")
		}
		query = strings.TrimSpace(string(b))
	}
	if query == "" {
		return "", errors.New("no query given")
	}
	return query, nil
}

func askForDetail() (bool, error) {
	ui := &input.UI{Writer: os.Stderr, Reader: os.Stdin}
	answer, err := ui.Ask("\nMore detail? [y/n]", &input.Options{
		Default:  "n",
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch answer {
			case "y", "Y", "n", "N":
				return nil
			default:
				return errors.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "read answer")
	}
	return answer == "y" || answer == "Y", nil
}

const printerQueueSize = 1024

// printer is a relay.Channel that writes a request's text to a terminal.
// A goroutine drains the queue in order. Send drops non-terminal messages
// when the queue is full and waits for room for terminal ones, which the
// drain loop needs to finish.
type printer struct {
	id     string
	w      io.Writer
	render bool
	queue  chan relay.Message
	done   chan struct{}

	printed string
	last    relay.Message
}

var _ relay.Channel = &printer{}

func newPrinter(w io.Writer, render bool, queueSize int) *printer {
	p := &printer{
		id:     "cli",
		w:      w,
		render: render,
		queue:  make(chan relay.Message, queueSize),
		done:   make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *printer) ID() string { return p.id }

func (p *printer) Send(msg relay.Message) error {
	select {
	case <-p.done:
		return errors.New("printer finished")
	default:
	}
	if msg.Type.Terminal() {
		select {
		case p.queue <- msg:
			return nil
		case <-p.done:
			return errors.New("printer finished")
		}
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		return errors.New("printer queue full")
	}
}

func (p *printer) loop() {
	defer close(p.done)
	for msg := range p.queue {
		p.handle(msg)
		if msg.Type.Terminal() {
			p.last = msg
			return
		}
	}
}

func (p *printer) handle(msg relay.Message) {
	switch msg.Type {
	case relay.TypeStreamDelta:
		if msg.Replay || msg.Replace {
			p.replace(msg.Delta)
			return
		}
		p.printed += msg.Delta
		if !p.render {
			_, _ = fmt.Fprint(p.w, msg.Delta)
		}
	case relay.TypeStreamComplete:
		if p.render {
			out, err := glamour.Render(msg.FullText, "dark")
			if err != nil {
				log.Debug().Err(err).Msg("render markdown")
				out = msg.FullText + "\n"
			}
			_, _ = fmt.Fprint(p.w, out)
			return
		}
		if !strings.HasSuffix(p.printed, "\n") {
			_, _ = fmt.Fprintln(p.w)
		}
	case relay.TypeStreamError:
		_, _ = fmt.Fprintf(p.w, "\nerror: %s\n", msg.Error)
	case relay.TypeStreamAbort:
		_, _ = fmt.Fprintf(p.w, "\naborted: %s\n", msg.Reason)
	case relay.TypeStreamStart:
	}
}

// replace handles a delta carrying the full text so far.
func (p *printer) replace(text string) {
	prev := p.printed
	p.printed = text
	if p.render {
		return
	}
	if strings.HasPrefix(text, prev) {
		_, _ = fmt.Fprint(p.w, text[len(prev):])
		return
	}
	_, _ = fmt.Fprint(p.w, "\n"+text)
}
