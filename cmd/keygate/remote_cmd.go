package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"keygate/api/clients/keygate"

	"github.com/google/uuid"
)

const requestTimeout = 30 * time.Second

func runRegister(args []string) int {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var server string
	var uniqueID string
	var clientID string
	var publicKeyPath string
	var fingerprintPath string
	fs.StringVar(&server, "server", defaultServer, "keygate server URL")
	fs.StringVar(&uniqueID, "unique-id", "", "identity to register under")
	fs.StringVar(&clientID, "client-id", "", "client id (default random UUID)")
	fs.StringVar(&publicKeyPath, "public-key", "", "public key PEM file")
	fs.StringVar(&fingerprintPath, "fingerprint", "", "fingerprint JSON file")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if uniqueID == "" || publicKeyPath == "" {
		fmt.Fprintln(os.Stderr, "register requires --unique-id and --public-key")
		return 1
	}
	if clientID == "" {
		clientID = uuid.NewString()
	}
	publicKey, err := os.ReadFile(publicKeyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read public key: %v\n", err)
		return 1
	}
	var fingerprint keygate.Fingerprint
	if fingerprintPath != "" {
		raw, err := os.ReadFile(fingerprintPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read fingerprint: %v\n", err)
			return 1
		}
		if err := json.Unmarshal(raw, &fingerprint); err != nil {
			fmt.Fprintf(os.Stderr, "decode fingerprint: %v\n", err)
			return 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	err = keygate.NewClient(server).Register(ctx, keygate.RegisterInput{
		ClientID:    clientID,
		UniqueID:    uniqueID,
		PublicKey:   string(publicKey),
		Fingerprint: fingerprint,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "register: %v\n", err)
		return 1
	}
	if err := writeJSON("", map[string]string{"client_id": clientID, "unique_id": uniqueID}); err != nil {
		return 1
	}
	return 0
}

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var server string
	var uniqueID string
	var publicKeyPath string
	fs.StringVar(&server, "server", defaultServer, "keygate server URL")
	fs.StringVar(&uniqueID, "unique-id", "", "identity to check")
	fs.StringVar(&publicKeyPath, "public-key", "", "public key PEM file")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if uniqueID == "" || publicKeyPath == "" {
		fmt.Fprintln(os.Stderr, "check requires --unique-id and --public-key")
		return 1
	}
	publicKey, err := os.ReadFile(publicKeyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read public key: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	exists, err := keygate.NewClient(server).CheckKey(ctx, uniqueID, string(publicKey))
	if err != nil {
		fmt.Fprintf(os.Stderr, "check: %v\n", err)
		return 1
	}
	if err := writeJSON("", map[string]bool{"exists": exists}); err != nil {
		return 1
	}
	if !exists {
		return 2
	}
	return 0
}

// signerFlags are shared by the commands that sign their request.
type signerFlags struct {
	server   string
	uniqueID string
	keyPath  string
}

func (f *signerFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.server, "server", defaultServer, "keygate server URL")
	fs.StringVar(&f.uniqueID, "unique-id", "", "identity to sign as")
	fs.StringVar(&f.keyPath, "private-key", "", "private key PEM file")
}

func (f *signerFlags) client(cmd string) (*keygate.Client, bool) {
	if f.uniqueID == "" || f.keyPath == "" {
		fmt.Fprintf(os.Stderr, "%s requires --unique-id and --private-key\n", cmd)
		return nil, false
	}
	key, err := readPrivateKey(f.keyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load private key: %v\n", err)
		return nil, false
	}
	return keygate.NewClient(f.server, keygate.WithSigner(f.uniqueID, key)), true
}

func runList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var signer signerFlags
	var outPath string
	signer.register(fs)
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	client, ok := signer.client("list")
	if !ok {
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	records, err := client.ListKeys(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list: %v\n", err)
		return 1
	}
	if err := writeJSON(outPath, map[string]any{"records": records}); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

func runRevoke(args []string) int {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var signer signerFlags
	var clientID string
	signer.register(fs)
	fs.StringVar(&clientID, "client-id", "", "client id to revoke")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if clientID == "" {
		fmt.Fprintln(os.Stderr, "revoke requires --client-id")
		return 1
	}
	client, ok := signer.client("revoke")
	if !ok {
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	revoked, err := client.RevokeKey(ctx, clientID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "revoke: %v\n", err)
		return 1
	}
	if err := writeJSON("", map[string]bool{"revoked": revoked}); err != nil {
		return 1
	}
	return 0
}

func runEncrypt(args []string) int {
	fs := flag.NewFlagSet("encrypt", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var signer signerFlags
	var message string
	var outPath string
	signer.register(fs)
	fs.StringVar(&message, "message", "", "plaintext to encrypt under your own key")
	fs.StringVar(&outPath, "out", "", "ciphertext output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if message == "" {
		fmt.Fprintln(os.Stderr, "encrypt requires --message")
		return 1
	}
	client, ok := signer.client("encrypt")
	if !ok {
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	ciphertext, err := client.EncryptMessage(ctx, message)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encrypt: %v\n", err)
		return 1
	}
	if err := writeOutput(outPath, []byte(ciphertext)); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}
