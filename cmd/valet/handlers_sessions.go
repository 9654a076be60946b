package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

func runSessionsList(configPath string) error {
	rt, err := buildRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.close()

	list, err := rt.sessions.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No saved sessions.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAGENT\tUPDATED\tMESSAGES")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", s.ID, s.Agent, s.UpdatedAt.Format(time.RFC3339), s.Messages)
	}
	return w.Flush()
}

func runSessionsDelete(configPath, id string) error {
	rt, err := buildRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.close()

	resolved, err := resolveSessionID(rt, id)
	if err != nil {
		return err
	}
	if err := rt.sessions.Delete(resolved); err != nil {
		return err
	}
	fmt.Printf("Deleted session %s.\n", resolved)
	return nil
}

// resolveSessionID expands a unique id prefix to the full id.
func resolveSessionID(rt *runtime, prefix string) (string, error) {
	list, err := rt.sessions.List()
	if err != nil {
		return "", err
	}
	var matches []string
	for _, s := range list {
		if s.ID == prefix {
			return s.ID, nil
		}
		if strings.HasPrefix(s.ID, prefix) {
			matches = append(matches, s.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no session matches %q", prefix)
	default:
		return "", fmt.Errorf("%q matches %d sessions, be more specific", prefix, len(matches))
	}
}
