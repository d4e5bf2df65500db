package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	os.Exit(call(http.MethodGet, *baseURL, "/admin/v1/state", 5*time.Second))
}

func navSaveCmd(args []string) {
	fs := flag.NewFlagSet("nav-save", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	os.Exit(call(http.MethodPost, *baseURL, "/admin/v1/nav/save", 10*time.Second))
}

func navLoadCmd(args []string) {
	fs := flag.NewFlagSet("nav-load", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	tick := fs.Uint64("tick", 0, "saved grid tick (0 = latest)")
	_ = fs.Parse(args)
	os.Exit(call(http.MethodPost, *baseURL, navLoadPath(*tick), 10*time.Second))
}

func navLoadPath(tick uint64) string {
	if tick == 0 {
		return "/admin/v1/nav/load"
	}
	return fmt.Sprintf("/admin/v1/nav/load?tick=%d", tick)
}

func navBlockCmd(args []string) {
	fs := flag.NewFlagSet("nav-block", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	min := fs.String("min", "", "min corner x,z")
	max := fs.String("max", "", "max corner x,z")
	walkable := fs.Bool("clear", false, "make the rectangle walkable instead of blocked")
	_ = fs.Parse(args)

	body, err := blockBody(*min, *max, !*walkable)
	if err != nil {
		fmt.Fprintln(os.Stderr, "nav-block:", err)
		os.Exit(2)
	}
	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/v1/nav/block"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Post(u, "application/json", strings.NewReader(body))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	os.Exit(printResponse(resp))
}

func call(method, baseURL, path string, timeout time.Duration) int {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, _ := http.NewRequest(method, u, nil)
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		return 1
	}
	return printResponse(resp)
}

func printResponse(resp *http.Response) int {
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return 1
	}
	return 0
}
