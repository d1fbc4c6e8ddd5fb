package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/markattarcolgate64/guardianlock/pkg/verify"
)

var stdinReader = bufio.NewReader(os.Stdin)

// readPassword prompts without echo on a terminal, and falls back to a
// plain line read when stdin is piped.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	if term.IsTerminal(int(syscall.Stdin)) {
		pw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}
	line, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readNewPassword prompts twice and requires both entries to match.
func readNewPassword(prompt string) (string, error) {
	pw1, err := readPassword(prompt)
	if err != nil {
		return "", err
	}
	pw2, err := readPassword("Confirm password: ")
	if err != nil {
		return "", err
	}
	if pw1 != pw2 {
		return "", errors.New("passwords do not match")
	}
	return pw1, nil
}

// stdinResponder presents a challenge prompt and reads the operator's
// answer, measuring how long it took.
func stdinResponder(ch verify.Challenge) (string, time.Duration, error) {
	fmt.Println()
	fmt.Println(ch.Prompt)
	fmt.Print("> ")

	start := time.Now()
	line, err := stdinReader.ReadString('\n')
	elapsed := time.Since(start)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read response: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), elapsed, nil
}
