package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

func runMemoryShow(configPath string) error {
	rt, err := buildRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.close()

	for i, block := range rt.memory.List() {
		if i > 0 {
			fmt.Println()
		}
		flags := ""
		if block.ReadOnly {
			flags = " [read-only]"
		}
		fmt.Printf("%s (%d/%d chars)%s\n", block.Label, len(block.Value), block.Limit, flags)
		if block.Value == "" {
			fmt.Println("  (empty)")
			continue
		}
		fmt.Printf("  %s\n", block.Value)
	}
	return nil
}

func runMemoryLog(configPath string) error {
	rt, err := buildRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.close()

	versions := rt.memory.Versions().Log(20)
	if len(versions) == 0 {
		fmt.Println("No snapshots yet.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWHEN\tMESSAGE")
	for _, v := range versions {
		fmt.Fprintf(w, "%s\t%s\t%s\n", v.ID[:16], v.Timestamp.Format(time.RFC3339), v.Message)
	}
	return w.Flush()
}

func runMemoryDiff(configPath, from, to string) error {
	rt, err := buildRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.close()

	entries, err := rt.memory.Versions().Diff(from, to)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No differences.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s %s\n", e.Change, e.Label)
	}
	return nil
}

func runMemoryRollback(configPath, id string) error {
	rt, err := buildRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.close()

	snapshot, err := rt.memory.Versions().Rollback(id)
	if err != nil {
		return err
	}
	rt.memory.Restore(snapshot)
	if _, err := rt.memory.Commit(fmt.Sprintf("Rollback to %s", id)); err != nil {
		return err
	}
	fmt.Printf("Memory restored to snapshot %s.\n", id)
	return nil
}
