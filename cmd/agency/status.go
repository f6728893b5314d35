package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"agency-ai/internal/adapter/gateway"
	"agency-ai/internal/infra/config"
)

// runStatus queries a running server's status endpoint and prints a
// short summary. Address and token default to the config file values;
// --addr and --token override them.
func runStatus() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	addr := argValue("--addr")
	if addr == "" {
		addr = cfg.Gateway.Addr
	}
	token := argValue("--token")
	if token == "" && len(cfg.Gateway.Auth.Tokens) > 0 {
		token = cfg.Gateway.Auth.Tokens[0].Token
	}

	url := statusURL(addr)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("reach %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var status gateway.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	uptime := time.Duration(status.Service.UptimeSeconds) * time.Second
	fmt.Printf("service:  %s %s (up %s)\n", status.Service.Name, status.Service.Version, uptime)
	fmt.Printf("state:    %s\n", status.Workforce.State)
	fmt.Printf("agents:   %d\n", status.Workforce.AgentCount)
	if status.Workforce.LeadID != "" {
		fmt.Printf("lead:     %s\n", status.Workforce.LeadID)
	}
	return nil
}

// statusURL turns a listen address into the status endpoint URL. Bare
// ":8090" style addresses get a localhost host.
func statusURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/") + "/api/status"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr + "/api/status"
}

// argValue extracts a "--flag value" or "--flag=value" argument.
func argValue(name string) string {
	for i := 1; i < len(os.Args); i++ {
		if os.Args[i] == name && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(os.Args[i], name+"=") {
			return strings.TrimPrefix(os.Args[i], name+"=")
		}
	}
	return ""
}
