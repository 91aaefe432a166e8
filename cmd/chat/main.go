// Command chat is a minimal terminal client for the chat server. It logs in,
// then runs a line-oriented loop: type to send a message, or use /chats,
// /open, /new, /quit.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"claude-chat/internal/client"
	"claude-chat/internal/store"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Chat server base URL")
	email := flag.String("email", "", "Account email")
	password := flag.String("password", "", "Account password")
	flag.Parse()

	if *email == "" || *password == "" {
		log.Fatal("-email and -password are required")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	c := client.NewClient(*server)
	if err := c.Login(ctx, *email, *password); err != nil {
		log.Fatalf("Login failed: %v", err)
	}

	session := client.NewSession(c, logger)
	session.OnChunk = func(delta string) {
		fmt.Print(delta)
	}

	fmt.Println("Connected. Type a message, or /chats, /open <n>, /new, /quit.")

	var listed []store.Chat
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "/quit":
			if err := c.SignOut(ctx); err != nil {
				logger.Error("sign-out failed", "error", err)
			}
			return

		case line == "/chats":
			chats, err := session.ListChats(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to list chats: %v\n", err)
				continue
			}
			listed = chats
			for i, chat := range chats {
				fmt.Printf("%2d. %s\n", i+1, chat.Title)
			}

		case strings.HasPrefix(line, "/open "):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
			if err != nil || n < 1 || n > len(listed) {
				fmt.Fprintln(os.Stderr, "Usage: /open <n> after /chats")
				continue
			}
			if err := session.SelectChat(ctx, listed[n-1]); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to open chat: %v\n", err)
				continue
			}
			for _, turn := range session.Turns() {
				fmt.Printf("[%s] %s\n", turn.Role, turn.Content)
			}

		case line == "/new":
			chat, err := session.StartNewChat(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to create chat: %v\n", err)
				continue
			}
			fmt.Printf("Started %s\n", chat.Title)

		case line != "":
			session.SetInput(line)
			if err := session.Submit(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "\nSend failed: %v\n", err)
				continue
			}
			fmt.Println()
		}
	}
}
