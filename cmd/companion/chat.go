package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"pkt.systems/companion/core"
	"pkt.systems/companion/internal/moodstats"
	"pkt.systems/companion/schema"
)

const chatHelp = `commands:
  /stats             toggle the mood chart
  /save <id> [path]  save a rendered image
  /logout            forget the stored session
  /help              show this help
  /quit              leave the chat
anything else is sent as a message`

func newChatCmd(cfgPath *string) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the companion",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openClientEnv(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			if strings.TrimSpace(message) != "" {
				return chatOnce(cmd.Context(), env, cmd.OutOrStdout(), message)
			}
			return chatLoop(cmd.Context(), env, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "send a single message and exit")
	return cmd
}

func chatOnce(ctx context.Context, env *clientEnv, out io.Writer, message string) error {
	rt, err := env.newChatRuntime(out)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	res, err := rt.ctrl.Submit(ctx, message)
	if err != nil {
		return err
	}
	rt.ctrl.Wait()
	if res.Outcome.Kind != schema.OutcomeSuccess {
		return fmt.Errorf("chat failed: %s", res.Outcome.Kind)
	}
	return nil
}

func chatLoop(ctx context.Context, env *clientEnv, in io.Reader, out io.Writer) error {
	con, err := openConsole(in, out, "> ")
	if err != nil {
		return err
	}
	defer con.Close()
	rt, err := env.newChatRuntime(con.out)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	r := &repl{ctx: ctx, rt: rt, out: con.out}
	if sess, ok := rt.sessions.Current(); ok {
		_, _ = fmt.Fprintf(con.out, "chatting as %s, /help for commands\n", sess.DisplayName)
	} else {
		_, _ = fmt.Fprintln(con.out, "not logged in; run \"companion login\" first")
	}
	for {
		line, err := con.in.ReadLine()
		if err != nil {
			r.wait()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if r.handle(line) {
			r.wait()
			return nil
		}
	}
}

// repl dispatches console lines to slash commands or the pipeline.
type repl struct {
	ctx context.Context
	rt  *chatRuntime
	out io.Writer
	wg  sync.WaitGroup
}

// handle processes one line and reports whether the loop should end.
func (r *repl) handle(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		r.submit(line)
		return false
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		r.println(chatHelp)
	case "/stats":
		r.toggleStats()
	case "/save":
		r.save(fields[1:])
	case "/logout":
		if err := r.rt.sessions.Clear(); err != nil {
			r.println("logout failed: " + err.Error())
			return false
		}
		r.println("logged out")
	default:
		r.println("unknown command " + fields[0] + ", /help lists commands")
	}
	return false
}

// submit runs the pipeline in the background so input stays responsive.
// A second message while one is in flight is rejected by the controller.
func (r *repl) submit(text string) {
	if r.rt.ctrl.Busy() {
		r.println("still waiting for the previous reply")
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, err := r.rt.ctrl.Submit(r.ctx, text)
		switch {
		case err == nil, errors.Is(err, schema.ErrUnauthenticated), errors.Is(err, schema.ErrEmptyMessage),
			errors.Is(err, core.ErrPipelinePanic):
		case errors.Is(err, schema.ErrBusy):
			r.println("still waiting for the previous reply")
		default:
			r.println("error: " + err.Error())
		}
	}()
}

func (r *repl) toggleStats() {
	if !r.rt.stats.Toggle() {
		r.println("mood chart hidden")
		return
	}
	bars, err := r.rt.stats.Load(r.ctx)
	if err != nil {
		r.println("mood chart unavailable: " + err.Error())
		return
	}
	_, _ = io.WriteString(r.out, moodstats.Render(bars))
}

func (r *repl) save(args []string) {
	if len(args) == 0 {
		r.println("usage: /save <id> [path]")
		return
	}
	id, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
	if err != nil {
		r.println("invalid image id " + args[0])
		return
	}
	path := ""
	if len(args) > 1 {
		path = strings.Join(args[1:], " ")
	}
	written, err := r.rt.log.SaveImage(schema.ItemID(id), path)
	if err != nil {
		r.println("save failed: " + err.Error())
		return
	}
	r.println("saved " + written)
}

func (r *repl) println(text string) {
	_, _ = fmt.Fprintln(r.out, text)
}

func (r *repl) wait() {
	r.wg.Wait()
}
