package main

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"keygate/pkg/keysig"
)

var stdout io.Writer = os.Stdout

func writeOutput(path string, payload []byte) error {
	if path == "" {
		if _, err := stdout.Write(payload); err != nil {
			return err
		}
		_, err := fmt.Fprintln(stdout)
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func writeJSON(path string, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeOutput(path, payload)
}

func readPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return keysig.ParsePrivateKeyPEM(string(raw))
}

func readTrimmed(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
