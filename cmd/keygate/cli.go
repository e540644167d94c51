package main

import (
	"fmt"
	"os"
	"path/filepath"
)

const defaultServer = "http://localhost:8080"

func run(args []string) int {
	if len(args) < 2 {
		usage(args)
		return 1
	}

	switch args[1] {
	case "keygen":
		return runKeygen(args[2:])
	case "register":
		return runRegister(args[2:])
	case "check":
		return runCheck(args[2:])
	case "list":
		return runList(args[2:])
	case "revoke":
		return runRevoke(args[2:])
	case "encrypt":
		return runEncrypt(args[2:])
	case "decrypt":
		return runDecrypt(args[2:])
	case "sign-header":
		return runSignHeader(args[2:])
	}

	usage(args)
	return 1
}

func usage(args []string) {
	name := "keygate"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s keygen [--bits 4096] --private-out <file> --public-out <file>\n", name)
	fmt.Fprintf(os.Stderr, "  %s register [--server <url>] --unique-id <id> --public-key <file> [--client-id <id>] [--fingerprint <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s check [--server <url>] --unique-id <id> --public-key <file>\n", name)
	fmt.Fprintf(os.Stderr, "  %s list [--server <url>] --unique-id <id> --private-key <file> [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s revoke [--server <url>] --unique-id <id> --private-key <file> --client-id <id>\n", name)
	fmt.Fprintf(os.Stderr, "  %s encrypt [--server <url>] --unique-id <id> --private-key <file> --message <text> [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s decrypt --private-key <file> (--in <file>|--ciphertext <b64>) [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s sign-header --unique-id <id> --private-key <file> --op <list-keys|revoke-key|encrypt-message> [--payload <value>] [--ts <timestamp>]\n", name)
}
