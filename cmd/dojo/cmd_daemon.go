package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/example/matlab-dojo/internal/config"
)

// isRunning checks the daemon's health endpoint.
func isRunning() bool {
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(daemonAddr + "/v1/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func cmdStart() error {
	if isRunning() {
		fmt.Println("Daemon already running.")
		return nil
	}

	// Prefer a dojod next to this binary, fall back to PATH.
	dojod := "dojod"
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "dojod")
		if _, err := os.Stat(candidate); err == nil {
			dojod = candidate
		}
	}

	cmd := exec.Command(dojod)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("release daemon process: %w", err)
	}

	// Give it a moment to bind.
	for i := 0; i < 20; i++ {
		time.Sleep(250 * time.Millisecond)
		if isRunning() {
			fmt.Println("Daemon started.")
			return nil
		}
	}
	return fmt.Errorf("daemon did not become healthy (check ~/.matlab-dojo/logs/dojod.log)")
}

func cmdStop() error {
	dir, err := config.DojoDir()
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(filepath.Join(dir, pidFile))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("daemon not running (no pid file)")
		}
		return fmt.Errorf("read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return fmt.Errorf("parse pid file: %w", err)
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon: %w", err)
	}
	fmt.Println("Daemon stopping.")
	return nil
}

func cmdStatus() error {
	if !isRunning() {
		fmt.Println("Daemon: not running")
		return nil
	}

	resp, err := http.Get(daemonAddr + "/v1/status")
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()

	var status struct {
		Version      string   `json:"version"`
		Modules      int      `json:"modules"`
		Challenges   int      `json:"challenges"`
		Storage      string   `json:"storage"`
		LLMProviders []string `json:"llm_providers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Println("Daemon: running")
	fmt.Printf("Version:    %s\n", status.Version)
	fmt.Printf("Modules:    %d (%d challenges)\n", status.Modules, status.Challenges)
	fmt.Printf("Storage:    %s\n", status.Storage)
	if len(status.LLMProviders) > 0 {
		fmt.Printf("AI tutors:  %s\n", strings.Join(status.LLMProviders, ", "))
	} else {
		fmt.Println("AI tutors:  none configured")
	}
	return nil
}
