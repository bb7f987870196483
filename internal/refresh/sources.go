package refresh

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"flotilla/internal/domain"
)

// ParseFreeproxyList reads a plain-text proxy list, one entry per line, in
// "host:port" or "host:port:username:password" form. Blank lines, comments
// and malformed entries are skipped; duplicate keys keep the first entry.
func ParseFreeproxyList(projectID, connectorID string, r io.Reader) []domain.Freeproxy {
	var freeproxies []domain.Freeproxy
	seen := map[string]struct{}{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ":")
		if len(parts) != 2 && len(parts) != 4 {
			continue
		}
		port, err := strconv.Atoi(parts[1])
		if err != nil || port <= 0 || port > 65535 {
			continue
		}

		address := domain.Address{Hostname: parts[0], Port: port}
		key := address.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		freeproxy := domain.Freeproxy{
			ID:          domain.BuildFreeproxyID(connectorID, key),
			ConnectorID: connectorID,
			ProjectID:   projectID,
			Key:         key,
			Type:        "http",
			Address:     address,
		}
		if len(parts) == 4 {
			freeproxy.Auth = &domain.Auth{Username: parts[2], Password: parts[3]}
		}
		freeproxies = append(freeproxies, freeproxy)
	}

	return freeproxies
}
