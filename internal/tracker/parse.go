package tracker

import (
	"bufio"
	"fmt"
	"strings"
)

const (
	jailListKey   = "Jail list:"
	bannedListKey = "Banned IP list:"
)

// ParseJailList extracts jail names from `fail2ban-client status` output.
func ParseJailList(out string) ([]string, error) {
	value, ok := findValue(out, jailListKey)
	if !ok {
		return nil, fmt.Errorf("tracker: %q not found in status output", jailListKey)
	}
	return strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	}), nil
}

// ParseBannedList extracts the raw banned entries from
// `fail2ban-client status <jail>` output. Entries are returned as printed;
// validation belongs to the address package.
func ParseBannedList(out string) ([]string, error) {
	value, ok := findValue(out, bannedListKey)
	if !ok {
		return nil, fmt.Errorf("tracker: %q not found in jail status output", bannedListKey)
	}
	return strings.Fields(value), nil
}

// findValue returns the text after key on the first line containing it.
func findValue(out, key string) (string, bool) {
	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if _, value, found := strings.Cut(line, key); found {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}
