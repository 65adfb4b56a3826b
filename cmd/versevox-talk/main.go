// Command versevox-talk drives a voice or text conversation against a
// VerseVox gateway from the terminal.
//
// Text mode reads questions from stdin:
//
//	versevox-talk -addr http://localhost:8080 -sources kjv
//
// Voice mode transcribes a recorded WAV utterance and plays the spoken
// answer into an MP3 file:
//
//	versevox-talk -sources kjv,niv -mode compare -wav question.wav -out answer.mp3
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/versevox/versevox/pkg/core/live"
	"github.com/versevox/versevox/pkg/core/types"
	versevox "github.com/versevox/versevox/sdk"
)

func main() {
	os.Exit(run(os.Stdin, os.Stdout, os.Stderr, os.Args[1:]))
}

func run(stdin io.Reader, stdout, stderr io.Writer, args []string) int {
	fs := flag.NewFlagSet("versevox-talk", flag.ContinueOnError)
	fs.SetOutput(stderr)

	addr := fs.String("addr", "http://localhost:8080", "gateway base URL")
	mode := fs.String("mode", "single", "conversation mode: single or compare")
	sources := fs.String("sources", "", "comma-separated source ids (required)")
	wavPath := fs.String("wav", "", "WAV file to use as the spoken question (text mode when empty)")
	outPath := fs.String("out", "", "file to append synthesized answers to (discards audio when empty)")
	voice := fs.String("voice", "", "synthesis voice override")
	quiet := fs.Bool("quiet", false, "suppress state transition output")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	sourceIDs := splitSources(*sources)
	if len(sourceIDs) == 0 {
		fmt.Fprintln(stderr, "versevox-talk: -sources is required (try -sources kjv)")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := talk(ctx, talkOptions{
		stdin:     stdin,
		stdout:    stdout,
		logger:    logger,
		addr:      *addr,
		mode:      types.Mode(*mode),
		sourceIDs: sourceIDs,
		wavPath:   *wavPath,
		outPath:   *outPath,
		voice:     *voice,
		quiet:     *quiet,
	}); err != nil {
		fmt.Fprintf(stderr, "versevox-talk: %v\n", err)
		return 1
	}
	return 0
}

type talkOptions struct {
	stdin  io.Reader
	stdout io.Writer
	logger *slog.Logger

	addr      string
	mode      types.Mode
	sourceIDs []string
	wavPath   string
	outPath   string
	voice     string
	quiet     bool
}

func talk(ctx context.Context, opts talkOptions) error {
	client := versevox.NewClient(opts.addr, versevox.WithLogger(opts.logger))

	if _, err := client.CreateSession(ctx); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if err := client.SelectSources(ctx, opts.mode, opts.sourceIDs); err != nil {
		endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.EndSession(endCtx)
		return fmt.Errorf("select sources: %w", err)
	}

	var convOpts []versevox.ConversationOption
	if opts.voice != "" {
		convOpts = append(convOpts, versevox.WithVoice(opts.voice))
	}
	conv, err := versevox.NewConversation(client, opts.mode, convOpts...)
	if err != nil {
		return err
	}

	var source live.AudioSource
	if opts.wavPath != "" {
		source = newWAVSource(opts.wavPath, 20)
	}

	var sink live.AudioSink = discardSink{}
	if opts.outPath != "" {
		fs := newFileSink(opts.outPath)
		defer fs.Close()
		sink = fs
	}

	ctrl := live.NewController(live.DefaultTurnConfig(), conv, source, sink)
	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("start conversation: %w", err)
	}

	renderDone := make(chan struct{})
	go func() {
		defer close(renderDone)
		renderEvents(opts.stdout, ctrl.Events(), opts.quiet)
	}()

	if opts.wavPath != "" {
		if err := ctrl.Listen(); err != nil {
			_ = ctrl.End()
			<-renderDone
			return err
		}
		// One utterance per file; wait for the answer then hang up.
		waitForAnsweredTurn(ctx, ctrl)
	} else {
		fmt.Fprintf(opts.stdout, "connected (%s mode, sources: %s); type a question, Ctrl-D to quit\n",
			opts.mode, strings.Join(opts.sourceIDs, ", "))
		readLoop(ctx, opts.stdin, ctrl)
	}

	if err := ctrl.End(); err != nil {
		opts.logger.Warn("ending conversation", "error", err)
	}
	<-renderDone
	return nil
}

func readLoop(ctx context.Context, stdin io.Reader, ctrl *live.Controller) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ctrl.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := ctrl.SendText(line); err != nil {
				return
			}
		}
	}
}

// waitForAnsweredTurn blocks until the transcript holds a question and its
// answer, or the context ends. After answering, the controller re-listens on
// the drained source, so idle is not a usable completion signal here.
func waitForAnsweredTurn(ctx context.Context, ctrl *live.Controller) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ctrl.Done():
			return
		case <-ticker.C:
			if len(ctrl.Transcript()) >= 2 {
				return
			}
		}
	}
}

func renderEvents(w io.Writer, events <-chan live.Event, quiet bool) {
	for ev := range events {
		switch e := ev.(type) {
		case *live.StateChangedEvent:
			if !quiet {
				fmt.Fprintf(w, "[%s]\n", e.To)
			}
		case *live.UserTurnEvent:
			fmt.Fprintf(w, "you: %s\n", e.Text)
		case *live.AssistantTurnEvent:
			fmt.Fprintf(w, "assistant: %s\n", e.Text)
			if e.Table != nil {
				renderTable(w, e.Table)
			}
		case *live.UtteranceDiscardedEvent:
			if !quiet {
				fmt.Fprintf(w, "(utterance too short, ignored)\n")
			}
		case *live.ErrorEvent:
			fmt.Fprintf(w, "error (%s): %s\n", e.Code, e.Message)
		case *live.ConversationEndedEvent:
			fmt.Fprintln(w, "conversation ended")
		}
	}
}

func renderTable(w io.Writer, table *types.Table) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "reference\t%s\n", strings.Join(table.Columns, "\t"))
	for _, row := range table.Rows {
		fmt.Fprintf(tw, "%s\t%s\n", row.Reference, strings.Join(row.Cells, "\t"))
	}
	_ = tw.Flush()
}

func splitSources(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
