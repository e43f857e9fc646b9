package main

import (
	"fmt"
	"os"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	daemonAddr = "http://127.0.0.1:7480"
	pidFile    = "dojod.pid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "modules":
		err = cmdModules()
	case "stats":
		err = cmdStats()
	case "cheatsheet":
		err = cmdCheatSheet()
	case "reset":
		err = cmdReset(os.Args[2:])
	case "ask":
		err = cmdAsk(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("dojo %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`MATLAB Dojo - MATLAB practice from the terminal

Usage:
  dojo <command> [arguments]

Daemon Commands:
  start           Start the dojo daemon
  stop            Stop the dojo daemon
  status          Show daemon status

Game Commands:
  modules         List curriculum modules and progress
  stats           Show star totals, weak areas and exam history
  cheatsheet      Print the auto-generated cheat sheet
  reset           Wipe all saved progress (asks for confirmation)
  ask <question>  Ask the AI tutor a MATLAB question

Other Commands:
  version         Show version
  help            Show this help`)
}
