package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stemsi/exstem-academy/internal/config"
	"github.com/stemsi/exstem-academy/internal/service"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Issue Access Token ===")

	// Token type
	fmt.Print("Token type [student/admin] (default admin): ")
	typeStr, _ := reader.ReadString('\n')
	tokenType := service.TokenType(strings.TrimSpace(typeStr))
	if tokenType == "" {
		tokenType = service.TokenTypeAdmin
	}
	if tokenType != service.TokenTypeStudent && tokenType != service.TokenTypeAdmin {
		fmt.Println("Error: token type must be student or admin")
		return
	}

	// User ID
	fmt.Print("Enter User ID: ")
	idStr, _ := reader.ReadString('\n')
	userID, err := strconv.Atoi(strings.TrimSpace(idStr))
	if err != nil || userID <= 0 {
		fmt.Println("Error: User ID must be a positive number")
		return
	}

	// Lifetime
	fmt.Print("Lifetime (default 12h): ")
	ttlStr, _ := reader.ReadString('\n')
	ttl := 12 * time.Hour
	if s := strings.TrimSpace(ttlStr); s != "" {
		if ttl, err = time.ParseDuration(s); err != nil || ttl <= 0 {
			fmt.Println("Error: lifetime must be a positive duration such as 30m or 8h")
			return
		}
	}

	var permissions []string
	if tokenType == service.TokenTypeAdmin {
		permissions = []string{service.PermExamCacheManage}
	}

	// Signing secret. A terminal gets a hidden prompt; piped input falls
	// back to JWT_SECRET.
	secret := cfg.JWTSecret
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Signing secret (blank uses JWT_SECRET): ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			fmt.Println("Error reading secret")
			return
		}
		if len(b) > 0 {
			secret = string(b)
		}
	}
	if secret == "" {
		fmt.Println("Error: no signing secret")
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	token, err := service.NewAuthService(secret).IssueToken(tokenType, userID, ttl, permissions...)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n%s token for user %d, valid %s:\n%s\n", tokenType, userID, ttl, token)
}
