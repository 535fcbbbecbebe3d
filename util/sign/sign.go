// Command sign signs login challenges with an Ed25519 private key.
//
// With -server it fetches the current challenge from a running instance and
// prints the signature ready to paste into the verify request. Without it,
// challenges are read interactively from stdin.
package main

import (
	"bufio"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	outputStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func loadPrivateKey(filename string) (ed25519.PrivateKey, error) {
	privKeyBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(privKeyBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	privKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	edPriv, ok := privKey.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an Ed25519 private key")
	}
	return edPriv, nil
}

// fetchChallenge gets the current login challenge from a running server.
func fetchChallenge(server string) ([]byte, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(strings.TrimRight(server, "/") + "/auth/challenge")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var body struct {
		Challenge string `json:"challenge"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode challenge response: %w", err)
	}

	return base64.StdEncoding.DecodeString(body.Challenge)
}

func main() {
	keyPath := flag.String("key", "privkey.pem", "Path to the Ed25519 private key (PKCS8 PEM)")
	server := flag.String("server", "", "Base URL of a running instance to fetch the challenge from")
	flag.Parse()

	privKey, err := loadPrivateKey(*keyPath)
	if err != nil {
		fmt.Println(errorStyle.Render("Error loading private key: " + err.Error()))
		os.Exit(1)
	}

	// One-shot mode: fetch, sign, print and exit.
	if *server != "" {
		challenge, err := fetchChallenge(*server)
		if err != nil {
			fmt.Println(errorStyle.Render("Error fetching challenge: " + err.Error()))
			os.Exit(1)
		}

		signature := ed25519.Sign(privKey, challenge)
		fmt.Println(outputStyle.Render(base64.StdEncoding.EncodeToString(signature)))
		return
	}

	fmt.Println("Enter challenges one by one. Type 'quit' to exit.")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(promptStyle.Render("Enter challenge (base64): "))

		if !scanner.Scan() {
			break
		}

		challengeB64 := strings.TrimSpace(scanner.Text())
		if challengeB64 == "" {
			continue
		}
		if challengeB64 == "quit" {
			break
		}

		challenge, err := base64.StdEncoding.DecodeString(challengeB64)
		if err != nil {
			fmt.Println(errorStyle.Render("Error: invalid base64"))
			continue
		}

		signature := ed25519.Sign(privKey, challenge)
		sigB64 := base64.StdEncoding.EncodeToString(signature)

		fmt.Println(outputStyle.Render("Signature: " + sigB64))
	}

	if err := scanner.Err(); err != nil {
		fmt.Println(errorStyle.Render("Error reading input: " + err.Error()))
	}
}
