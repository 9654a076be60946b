package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/valetd/valet/internal/agent"
	"github.com/valetd/valet/internal/session"
)

func runChat(ctx context.Context, configPath, sessionID, message string, debug bool) error {
	rt, err := buildRuntime(configPath, debug)
	if err != nil {
		return err
	}
	defer rt.close()

	var sess *session.Session
	if sessionID != "" {
		id, err := resolveSessionID(rt, sessionID)
		if err != nil {
			return err
		}
		sess, err = rt.sessions.Load(id)
		if errors.Is(err, session.ErrNotFound) {
			return fmt.Errorf("no session %s; see `valet sessions list`", sessionID)
		}
		if err != nil {
			return err
		}
	} else {
		sess = session.New(rt.cfg.Agent.Name)
	}

	if message != "" {
		answer, err := rt.loop.Run(ctx, sess, message)
		if err != nil {
			return err
		}
		if err := rt.sessions.Save(sess); err != nil {
			rt.logger.Warn("save session failed", "error", err)
		}
		fmt.Println(answer)
		return nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("stdin is not a terminal; use --message for scripted turns")
	}
	return runInteractive(ctx, rt, sess)
}

func runInteractive(ctx context.Context, rt *runtime, sess *session.Session) error {
	rt.loop.OnEvent = func(ev agent.Event) {
		switch ev.Type {
		case agent.EventToolCall:
			fmt.Printf("  ... %s\n", ev.Tool)
		case agent.EventToolError:
			fmt.Printf("  ... %s failed: %s\n", ev.Tool, firstLine(ev.Text))
		}
	}

	fmt.Printf("%s ready. Session %s. Type 'exit' to quit.\n", rt.cfg.Agent.Name, shortID(sess.ID))
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)

	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		answer, err := rt.loop.Run(ctx, sess, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		fmt.Printf("%s> %s\n", rt.cfg.Agent.Name, answer)

		if err := rt.sessions.Save(sess); err != nil {
			rt.logger.Warn("save session failed", "error", err)
		}
	}
	fmt.Printf("Session saved as %s.\n", shortID(sess.ID))
	return scanner.Err()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
