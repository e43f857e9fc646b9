package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func requireDaemon() error {
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'dojo start' first)")
	}
	return nil
}

func cmdModules() error {
	if err := requireDaemon(); err != nil {
		return err
	}

	resp, err := http.Get(daemonAddr + "/v1/stats")
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	defer resp.Body.Close()

	var stats struct {
		Modules []struct {
			ModuleID      int    `json:"moduleId"`
			Name          string `json:"name"`
			StarsEarned   int    `json:"starsEarned"`
			StarsPossible int    `json:"starsPossible"`
			Completed     int    `json:"completed"`
			Challenges    int    `json:"challenges"`
		} `json:"modules"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Println("Modules")
	fmt.Println("=======")
	for _, m := range stats.Modules {
		fmt.Printf("%2d. %-32s %2d/%2d challenges  %s\n",
			m.ModuleID, m.Name, m.Completed, m.Challenges,
			renderStars(m.StarsEarned, m.StarsPossible))
	}
	return nil
}

func cmdStats() error {
	if err := requireDaemon(); err != nil {
		return err
	}

	resp, err := http.Get(daemonAddr + "/v1/stats")
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	defer resp.Body.Close()

	var stats struct {
		StarsEarned   int `json:"starsEarned"`
		StarsPossible int `json:"starsPossible"`
		Completed     int `json:"completed"`
		Challenges    int `json:"challenges"`
		WeakAreas     []struct {
			Name          string `json:"name"`
			StarsEarned   int    `json:"starsEarned"`
			StarsPossible int    `json:"starsPossible"`
		} `json:"weakAreas"`
		ExamHistory []struct {
			Score     int    `json:"score"`
			Total     int    `json:"total"`
			Scope     string `json:"scope"`
			Timestamp int64  `json:"timestamp"`
		} `json:"examHistory"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Println("Progress")
	fmt.Println("========")
	fmt.Printf("Stars:      %d/%d\n", stats.StarsEarned, stats.StarsPossible)
	fmt.Printf("Completed:  %d/%d challenges\n", stats.Completed, stats.Challenges)

	if len(stats.WeakAreas) > 0 {
		fmt.Println("\nWeak Areas")
		fmt.Println("----------")
		for _, w := range stats.WeakAreas {
			fmt.Printf("%-32s %s\n", w.Name, renderStars(w.StarsEarned, w.StarsPossible))
		}
	}

	if len(stats.ExamHistory) > 0 {
		fmt.Println("\nExam History")
		fmt.Println("------------")
		for _, e := range stats.ExamHistory {
			when := time.UnixMilli(e.Timestamp).Format("2006-01-02 15:04")
			fmt.Printf("%s  %-12s %d/%d\n", when, e.Scope, e.Score, e.Total)
		}
	}
	return nil
}

func cmdCheatSheet() error {
	if err := requireDaemon(); err != nil {
		return err
	}

	resp, err := http.Get(daemonAddr + "/v1/cheatsheet")
	if err != nil {
		return fmt.Errorf("get cheat sheet: %w", err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
		return fmt.Errorf("read cheat sheet: %w", err)
	}
	return nil
}

func cmdReset(args []string) error {
	if err := requireDaemon(); err != nil {
		return err
	}

	force := len(args) > 0 && args[0] == "--force"
	if !force {
		fmt.Print("This wipes all stars, attempts and exam scores. Type 'yes' to continue: ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.TrimSpace(answer) != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	resp, err := http.Post(daemonAddr+"/v1/progress/reset", "application/json", nil)
	if err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reset failed (status %d)", resp.StatusCode)
	}

	fmt.Println("Progress wiped.")
	return nil
}

func cmdAsk(args []string) error {
	if err := requireDaemon(); err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: dojo ask <question>")
	}

	payload, err := json.Marshal(map[string]string{
		"message": strings.Join(args, " "),
	})
	if err != nil {
		return err
	}

	resp, err := http.Post(daemonAddr+"/v1/chat/messages", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("ask tutor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("rate limited; try again in %s seconds", resp.Header.Get("Retry-After"))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tutor error (status %d): %s", resp.StatusCode, string(body))
	}

	// The body is the tutor's reply, streamed as plain text.
	reader := bufio.NewReader(resp.Body)
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read reply: %w", err)
		}
	}
	fmt.Println()
	return nil
}

func renderStars(earned, possible int) string {
	if possible == 0 {
		return ""
	}
	return fmt.Sprintf("%d/%d stars", earned, possible)
}
