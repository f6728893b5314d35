package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"agency-ai/internal/infra/config"
)

func runConfig() error {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: agency config <validate|encrypt-key>")
		os.Exit(1)
	}
	switch os.Args[2] {
	case "validate":
		return runConfigValidate()
	case "encrypt-key":
		return runConfigEncryptKey()
	default:
		return fmt.Errorf("unknown config subcommand: %s", os.Args[2])
	}
}

// runConfigValidate loads the config (which validates it) and prints a
// short summary of what a server would run with.
func runConfigValidate() error {
	path := configPath()
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	fmt.Printf("%s: OK\n", path)
	fmt.Printf("  provider:  %s\n", cfg.Inference.DefaultProvider)
	fmt.Printf("  store:     %s\n", cfg.Store.Driver)
	fmt.Printf("  gateway:   %v", cfg.Gateway.Enabled)
	if cfg.Gateway.Enabled {
		fmt.Printf(" (%s, %d tokens)", cfg.Gateway.Addr, len(cfg.Gateway.Auth.Tokens))
	}
	fmt.Println()
	fmt.Printf("  scheduler: %v (%d tasks)\n", cfg.Scheduler.Enabled, len(cfg.Scheduler.Tasks))
	fmt.Printf("  agents:    %d seeded + lead %q\n", len(cfg.Workforce.Agents), cfg.Workforce.Lead.Name)
	return nil
}

// runConfigEncryptKey reads a secret from stdin and prints its "enc:"
// form for pasting into the config file. The passphrase comes from
// AGENCY_CONFIG_KEY, the same variable the server decrypts with.
func runConfigEncryptKey() error {
	passphrase := os.Getenv("AGENCY_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("AGENCY_CONFIG_KEY is not set")
	}

	fmt.Fprint(os.Stderr, "Secret to encrypt: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return fmt.Errorf("secret must not be empty")
	}

	enc, err := config.EncryptValue(secret, passphrase)
	if err != nil {
		return err
	}
	fmt.Println("enc:" + enc)
	return nil
}
