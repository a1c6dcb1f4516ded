// Command client is an interactive MCP client. It connects to one of the servers described in
// a YAML profile file, either by spawning a command that speaks stdio or by opening an SSE
// stream, and offers a small command line over the connection.
//
// A profile file looks like:
//
//	servers:
//	  local:
//	    command: go
//	    args: [run, ./example/server]
//	    env:
//	      MCP_FS_ROOT: .
//	  remote:
//	    url: http://localhost:8080/sse
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/chzyer/readline"
	"github.com/contextwire/go-mcp"
)

func main() {
	configPath := flag.String("config", "servers.yaml", "Path to the server profiles")
	serverName := flag.String("server", "", "Name of the profile to connect to")
	verbose := flag.Bool("v", false, "Log protocol activity to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(*configPath, *serverName, logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, serverName string, logger *slog.Logger) error {
	p, err := loadProfiles(configPath)
	if err != nil {
		return err
	}
	name, prof, err := p.pick(serverName)
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          name + "> ",
		HistoryFile:     filepath.Join(os.TempDir(), "mcp-client.history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to start line editor: %w", err)
	}
	defer rl.Close()
	out := rl.Stdout()

	transport, cleanup, err := dial(prof, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ev := &events{out: out}
	client := mcp.NewClient(mcp.Info{Name: "contextwire-client", Version: "1.0.0"}, transport,
		mcp.WithClientLogger(logger),
		mcp.WithClientPingInterval(30*time.Second),
		mcp.WithSamplingHandler(ev),
		mcp.WithRootsListHandler(ev),
		mcp.WithProgressListener(ev),
		mcp.WithToolListWatcher(ev),
		mcp.WithPromptListWatcher(ev),
		mcp.WithResourceListWatcher(ev),
		mcp.WithResourceSubscribedWatcher(ev))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = client.Connect(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", name, err)
	}
	defer client.Close()

	info := client.ServerInfo()
	fmt.Fprintf(out, "connected to %s %s (protocol %s), type help for commands\n",
		info.Name, info.Version, client.ProtocolVersion())
	if instructions := client.Instructions(); instructions != "" {
		fmt.Fprintln(out, instructions)
	}

	r := &repl{client: client, rl: rl, out: out}
	return r.run()
}

// dial builds the transport for a profile. The returned cleanup waits for a spawned command to
// exit, killing it if it outlives its closed stdin.
func dial(p profile, logger *slog.Logger) (mcp.ClientTransport, func(), error) {
	if p.URL != "" {
		return mcp.NewSSEClient(p.URL, http.DefaultClient, mcp.WithSSEClientLogger(logger)), func() {}, nil
	}

	cmd := exec.Command(p.Command, p.Args...)
	cmd.Env = os.Environ()
	for k, v := range p.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start %s: %w", p.Command, err)
	}

	cleanup := func() {
		_ = stdin.Close()
		exited := make(chan error, 1)
		go func() {
			exited <- cmd.Wait()
		}()
		select {
		case <-exited:
		case <-time.After(5 * time.Second):
			_ = cmd.Process.Kill()
			<-exited
		}
	}
	return mcp.NewStdIO(stdout, stdin, mcp.WithStdIOLogger(logger)), cleanup, nil
}
