// Package main implements the lumectl CLI for manual operations against the
// lumed HTTP server.
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

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the lumed HTTP server
	serverURL string
	// threadID identifies the conversation thread
	threadID string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lumectl",
	Short: "CLI for lumed server operations",
	Long: `lumectl is a command-line interface for talking to the lumed server.
It provides commands for sending messages, running an interactive chat,
and checking server health.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8420", "lumed server URL")
	rootCmd.PersistentFlags().StringVar(&threadID, "thread", "", "conversation thread id (default: a fresh id)")
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(healthCmd)
}

// sendCmd sends a single message and prints the reply
var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send one message to the engine",
	Long: `Send a single message to the lumed server and print the reply.

Examples:
  # Send a message on a fresh thread
  lumectl send "add task: buy milk"

  # Continue an existing thread
  lumectl send --thread cli-demo "high priority"

  # Read the message from stdin
  echo "show my tasks" | lumectl send -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSend,
}

// chatCmd runs an interactive conversation on one thread
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat interactively with the engine",
	Long: `Start an interactive conversation with the lumed server. Every line
you type is one turn on the same thread; clarification prompts show up
inline. Exit with Ctrl-D or /quit.

Examples:
  # Start chatting on a fresh thread
  lumectl chat

  # Resume a known thread
  lumectl chat --thread cli-demo`,
	RunE: runChat,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check lumed server health",
	Long: `Check the health status of the lumed HTTP server.

Examples:
  # Check health
  lumectl health

  # Check health on a different server
  lumectl health --server http://localhost:9000`,
	RunE: runHealth,
}

// MessageRequest matches internal/httpapi/server.go MessageRequest
type MessageRequest struct {
	ThreadID string `json:"thread_id"`
	Text     string `json:"message_text"`
}

// MessageResponse matches internal/httpapi/server.go MessageResponse
type MessageResponse struct {
	ThreadID            string `json:"thread_id"`
	Response            string `json:"response"`
	ActiveNode          string `json:"active_node"`
	Suspended           bool   `json:"suspended"`
	ClarificationPrompt string `json:"clarification_prompt,omitempty"`
	Error               string `json:"error,omitempty"`
}

// HealthResponse matches internal/httpapi/server.go HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

func sendMessage(thread, text string) (*MessageResponse, error) {
	reqJSON, err := json.Marshal(MessageRequest{ThreadID: thread, Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/messages", serverURL)
	httpReq, err := http.NewRequest("POST", url, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var msgResp MessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &msgResp, nil
}

// runSend handles the send command
func runSend(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) == 0 || args[0] == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
		text = strings.TrimSpace(string(content))
	} else {
		text = args[0]
	}
	if text == "" {
		return fmt.Errorf("no message to send")
	}

	thread := threadID
	if thread == "" {
		thread = "cli-" + uuid.NewString()
	}

	resp, err := sendMessage(thread, text)
	if err != nil {
		return err
	}

	fmt.Println(resp.Response)
	if resp.Suspended {
		fmt.Fprintf(os.Stderr, "[lumectl] waiting for your answer; continue with: lumectl send --thread %s \"...\"\n", thread)
	} else if threadID == "" {
		fmt.Fprintf(os.Stderr, "[lumectl] thread: %s\n", thread)
	}
	return nil
}

// runChat handles the chat command
func runChat(cmd *cobra.Command, args []string) error {
	thread := threadID
	if thread == "" {
		thread = "cli-" + uuid.NewString()
	}
	fmt.Fprintf(os.Stderr, "[lumectl] chatting on thread %s (Ctrl-D or /quit to exit)\n", thread)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		resp, err := sendMessage(thread, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[lumectl] %v\n", err)
			continue
		}
		fmt.Println(resp.Response)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read from stdin: %w", err)
	}
	fmt.Println()
	return nil
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/health", serverURL)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to %s: %v\n", url, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", healthResp.Status)
	fmt.Printf("Server URL: %s\n", serverURL)
	return nil
}
