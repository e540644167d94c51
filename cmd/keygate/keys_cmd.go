package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"keygate/internal/domain"
	"keygate/pkg/keysig"
)

func runKeygen(args []string) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var bits int
	var privateOut string
	var publicOut string
	fs.IntVar(&bits, "bits", keysig.DefaultKeyBits, "RSA modulus size")
	fs.StringVar(&privateOut, "private-out", "", "private key output path (PKCS#8 PEM)")
	fs.StringVar(&publicOut, "public-out", "", "public key output path (SPKI PEM, default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if privateOut == "" {
		fmt.Fprintln(os.Stderr, "keygen requires --private-out")
		return 1
	}

	key, err := keysig.GenerateKey(bits)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		return 1
	}
	privatePEM, err := keysig.MarshalPrivateKeyPEM(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode private key: %v\n", err)
		return 1
	}
	publicPEM, err := keysig.MarshalPublicKeyPEM(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode public key: %v\n", err)
		return 1
	}
	if err := os.WriteFile(privateOut, []byte(privatePEM), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "write private key: %v\n", err)
		return 1
	}
	if publicOut == "" {
		if _, err := fmt.Fprint(stdout, publicPEM); err != nil {
			return 1
		}
		return 0
	}
	if err := os.WriteFile(publicOut, []byte(publicPEM), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write public key: %v\n", err)
		return 1
	}
	return 0
}

func runSignHeader(args []string) int {
	fs := flag.NewFlagSet("sign-header", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var uniqueID string
	var keyPath string
	var opName string
	var payload string
	var ts string
	fs.StringVar(&uniqueID, "unique-id", "", "identity to sign as")
	fs.StringVar(&keyPath, "private-key", "", "private key PEM file")
	fs.StringVar(&opName, "op", string(domain.OpListKeys), "operation: list-keys, revoke-key or encrypt-message")
	fs.StringVar(&payload, "payload", "", "target client id or message")
	fs.StringVar(&ts, "ts", "", "timestamp (default now, epoch milliseconds)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if uniqueID == "" || keyPath == "" {
		fmt.Fprintln(os.Stderr, "sign-header requires --unique-id and --private-key")
		return 1
	}
	op, err := parseOperation(opName, payload)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	key, err := readPrivateKey(keyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load private key: %v\n", err)
		return 1
	}
	if ts == "" {
		ts = keysig.Timestamp(time.Now())
	}
	header, err := keysig.AuthorizationHeader(key, op, ts, uniqueID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		return 1
	}
	if err := writeOutput("", []byte(header)); err != nil {
		return 1
	}
	return 0
}

func parseOperation(name, payload string) (domain.Operation, error) {
	switch domain.OperationKind(strings.TrimSpace(name)) {
	case domain.OpListKeys:
		return domain.ListKeysOperation(), nil
	case domain.OpRevokeKey:
		if payload == "" {
			return domain.Operation{}, fmt.Errorf("revoke-key requires --payload <client_id>")
		}
		return domain.RevokeKeyOperation(payload), nil
	case domain.OpEncryptMessage:
		if payload == "" {
			return domain.Operation{}, fmt.Errorf("encrypt-message requires --payload <message>")
		}
		return domain.EncryptMessageOperation(payload), nil
	default:
		return domain.Operation{}, fmt.Errorf("unknown operation %q", name)
	}
}

func runDecrypt(args []string) int {
	fs := flag.NewFlagSet("decrypt", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var keyPath string
	var inPath string
	var ciphertext string
	var outPath string
	fs.StringVar(&keyPath, "private-key", "", "private key PEM file")
	fs.StringVar(&inPath, "in", "", "file holding the base64 ciphertext")
	fs.StringVar(&ciphertext, "ciphertext", "", "base64 ciphertext")
	fs.StringVar(&outPath, "out", "", "plaintext output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if keyPath == "" || (inPath == "") == (ciphertext == "") {
		fmt.Fprintln(os.Stderr, "decrypt requires --private-key and exactly one of --in or --ciphertext")
		return 1
	}
	if inPath != "" {
		var err error
		if ciphertext, err = readTrimmed(inPath); err != nil {
			fmt.Fprintf(os.Stderr, "read ciphertext: %v\n", err)
			return 1
		}
	}
	key, err := readPrivateKey(keyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load private key: %v\n", err)
		return 1
	}
	plain, err := keysig.Decrypt(key, ciphertext)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decrypt: %v\n", err)
		return 1
	}
	if err := writeOutput(outPath, plain); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}
