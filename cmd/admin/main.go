package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "nav-save":
			navSaveCmd(os.Args[2:])
			return
		case "nav-load":
			navLoadCmd(os.Args[2:])
			return
		case "nav-block":
			navBlockCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// blockBody builds the /v1/nav/block request from "x,z" corners.
func blockBody(minS, maxS string, blocked bool) (string, error) {
	min, err := parseXZ(minS)
	if err != nil {
		return "", fmt.Errorf("min: %w", err)
	}
	max, err := parseXZ(maxS)
	if err != nil {
		return "", fmt.Errorf("max: %w", err)
	}
	if min[0] > max[0] || min[1] > max[1] {
		return "", fmt.Errorf("min must not exceed max")
	}
	b, err := json.Marshal(map[string]any{"min": min, "max": max, "blocked": blocked})
	return string(b), err
}

func parseXZ(s string) ([2]float64, error) {
	var out [2]float64
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return out, fmt.Errorf("want x,z got %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}
