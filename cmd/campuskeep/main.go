package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/campuskeep/campuskeep/pkg/config"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable to allow mocking in tests
var startServer = runServer

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		// Default to server
		return startServer(stderr)
	}

	switch args[1] {
	case "server", "serve":
		return startServer(stderr)
	case "health":
		return runHealthCmd(stdout, stderr)
	case "check-profile":
		return runCheckProfileCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			return startServer(stderr)
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "campuskeep - campus lost-and-found claim service")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  campuskeep [server]          Start the API server (default)")
	fmt.Fprintln(w, "  campuskeep health            Check a running server")
	fmt.Fprintln(w, "  campuskeep check-profile <f> Validate a policy profile YAML")
	fmt.Fprintln(w, "  campuskeep help              Show this help")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Configuration is read from the environment; see PORT, LOG_LEVEL,")
	fmt.Fprintln(w, "STORE_BACKEND, DATABASE_URL, SQLITE_PATH, REDIS_ADDR,")
	fmt.Fprintln(w, "SERVICE_TOKEN_KEY, RATE_LIMIT_RPM, POLICY_PROFILE, OTLP_ENDPOINT.")
}

func runHealthCmd(out, errOut io.Writer) int {
	cfg := config.Load()
	resp, err := http.Get("http://localhost:" + cfg.Port + "/health")
	if err != nil {
		fmt.Fprintf(errOut, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(errOut, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Fprintln(out, "OK")
	return 0
}

// runCheckProfileCmd compiles a policy profile without starting the server,
// so a broken deny rule is caught before deploy.
func runCheckProfileCmd(args []string, out, errOut io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(errOut, "Usage: campuskeep check-profile <profile.yaml>")
		return 2
	}
	profile, err := config.LoadProfile(args[0])
	if err != nil {
		fmt.Fprintf(errOut, "Profile invalid: %v\n", err)
		return 1
	}
	if _, err := profile.Overlay(); err != nil {
		fmt.Fprintf(errOut, "Profile invalid: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Profile %q OK (%d deny rules)\n", profile.Name, len(profile.DenyRules))
	return 0
}
