package main

import (
	"fmt"
	"os"
	"strings"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		runServer()
		return
	}

	cmd := os.Args[1]

	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		printUsage()
		return
	}

	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Println("pressbutton " + version)
		return
	}

	if strings.HasPrefix(cmd, "-") {
		runServer()
		return
	}

	args := os.Args[2:]

	switch cmd {
	case "server", "serve":
		runServer()
	case "register":
		cmdRegister(args)
	case "login", "auth":
		cmdLogin(args)
	case "ask", "post":
		cmdAsk(args)
	case "vote":
		cmdVote(args)
	case "comment":
		cmdComment(args)
	case "delete", "rm":
		cmdDelete(args)
	case "read", "list":
		cmdRead(args)
	case "status", "whoami":
		cmdStatus(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`pressbutton - Would you press the button?

Usage: pressbutton <command> [options]

Client Commands:
  register            Create an account and log in
  login               Log in again (when the token expires)
  ask                 Post a new question
  vote                Vote PRESS or DONT_PRESS on a question
  comment             Comment on a question
  delete              Delete your own question or comment
  read                List questions, or show one with its votes and comments
  status              Show current config and token status

Server:
  server              Start the pressbutton server (default if no command)

Examples:
  pressbutton register --email me@example.com --password hunter2hunter2 --name me
  pressbutton ask --yes "You can fly" --no "Only at walking speed"
  pressbutton vote --question 12 --press
  pressbutton vote --question 12 --dont
  pressbutton comment --question 12 --text "Easy press"
  pressbutton read --sort most_voted --search fly
  pressbutton read --question 12

Environment Variables (server):
  PRESSBUTTON_ADDR              Listen address (default: :8080, or :$PORT)
  PRESSBUTTON_DB_DRIVER         sqlite or postgres (default: sqlite)
  PRESSBUTTON_DB_PATH           SQLite database path (default: pressbutton.db)
  PRESSBUTTON_DATABASE_URL      Postgres connection string
  PRESSBUTTON_DB_AUTO_MIGRATE   Run gorm AutoMigrate on startup (default: true)
  PRESSBUTTON_JWT_SECRET        Token signing secret
  PRESSBUTTON_TOKEN_TTL         Token lifetime (default: 24h)
  PRESSBUTTON_LOG_LEVEL         debug, info, warn, error (default: info)
  PRESSBUTTON_LOG_FORMAT        text or json (default: text)`)
}
