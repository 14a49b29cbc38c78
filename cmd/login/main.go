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
	"syscall"
	"time"

	"github.com/stemsi/exstem-client/internal/config"
	"golang.org/x/term"
)

// login signs a user into a running local agent from the terminal. Handy on
// lab machines where the UI shell is not installed yet.
func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	agentURL := fmt.Sprintf("http://127.0.0.1:%s/api/v1/auth/login", cfg.AgentPort)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== ExStem Client Login ===")

	// Email
	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	// Password
	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println() // Newline after password input
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	// ─── Call the Agent ────────────────────────────────────────────────
	payload, _ := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Post(agentURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		fmt.Printf("Error: agent unreachable at %s (%v)\n", agentURL, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Login failed (%d): %s\n", resp.StatusCode, string(body))
		os.Exit(1)
	}

	var parsed struct {
		Data struct {
			Session struct {
				Email string `json:"email"`
				Name  string `json:"name"`
				Mode  string `json:"mode"`
			} `json:"session"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		fmt.Printf("Login succeeded but response was unreadable: %v\n", err)
		return
	}

	fmt.Printf("\nSuccess! Signed in as '%s' (%s), mode: %s\n",
		parsed.Data.Session.Name, parsed.Data.Session.Email, parsed.Data.Session.Mode)
}
