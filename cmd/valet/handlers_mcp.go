package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

func runMcpList(ctx context.Context, configPath string) error {
	rt, err := buildRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.close()

	status := rt.manager.Status()
	if len(status) == 0 {
		fmt.Printf("No MCP servers configured. Add them to %s/mcp_servers.json.\n", rt.stateDir)
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tCOMMAND")
	for _, s := range status {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, s.State, s.Command)
	}
	return w.Flush()
}

func runMcpTools(ctx context.Context, configPath, server string) error {
	rt, err := buildRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.close()

	if server != "" {
		if err := rt.manager.Connect(ctx, server); err != nil {
			return err
		}
	} else if err := rt.manager.ConnectAll(ctx); err != nil {
		rt.logger.Warn("some servers failed to connect", "error", err)
	}

	infos := rt.manager.Tools()
	if len(infos) == 0 {
		fmt.Println("No tools available.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERVER\tTOOL\tDESCRIPTION")
	for _, info := range infos {
		if server != "" && info.Server != server {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", info.Server, info.Name, firstLine(info.Description))
	}
	return w.Flush()
}

func runMcpCall(ctx context.Context, configPath, server, tool string, kvArgs []string) error {
	rt, err := buildRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.close()

	args := make(map[string]string, len(kvArgs))
	for _, kv := range kvArgs {
		key, value, found := strings.Cut(kv, "=")
		if !found {
			return fmt.Errorf("argument %q is not key=value", kv)
		}
		args[key] = value
	}

	out, err := rt.manager.CallTool(ctx, server, tool, args)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
