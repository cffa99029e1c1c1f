package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strings"
)

// ResolveValue expands secret references used for api_key and base_url:
//   - op://vault/item/field  1Password secret via `op read`
//   - srv://record/path      DNS SRV lookup, returned as https://host:port/path
//   - $(command)             trimmed stdout of a shell command
//   - ${VAR} or $VAR         environment variable
//
// Anything else is returned as-is.
func ResolveValue(value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", nil
	case strings.HasPrefix(value, "op://"):
		return resolveOnePassword(value)
	case strings.HasPrefix(value, "srv://"):
		return resolveSRV(value)
	case strings.HasPrefix(value, "$(") && strings.HasSuffix(value, ")"):
		return runCommand("sh", "-c", value[2:len(value)-1])
	default:
		return expandEnv(value), nil
	}
}

// expandEnv expands a whole-string ${VAR} or $VAR reference.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// Format: op://vault/item/field or op://vault/item/field?account=account.1password.com
func resolveOnePassword(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("1password: invalid reference %s: %w", ref, err)
	}
	clean := fmt.Sprintf("op://%s%s", u.Host, u.Path)
	args := []string{"read", clean}
	if account := u.Query().Get("account"); account != "" {
		args = append(args, "--account", account)
	}
	out, err := runCommand("op", args...)
	if err != nil {
		return "", fmt.Errorf("1password: %w (is 'op' CLI installed and signed in?)", err)
	}
	return out, nil
}

func resolveSRV(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid srv:// URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("srv:// URL missing host: %s", ref)
	}

	_, addrs, err := net.LookupSRV("", "", u.Host)
	if err != nil {
		return "", fmt.Errorf("SRV lookup failed for %s: %w", u.Host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no SRV records found for %s", u.Host)
	}

	// Go's resolver sorts by priority and weight
	addr := addrs[0]
	return fmt.Sprintf("https://%s:%d%s", strings.TrimSuffix(addr.Target, "."), addr.Port, u.Path), nil
}

func runCommand(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("command failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("command failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
