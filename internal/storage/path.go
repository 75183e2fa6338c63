package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildArtifactPath returns the object key of an exported chart artifact:
// <prefix>/<session>/<execution>.<extension>. Executions outside a session
// are filed under "adhoc".
func BuildArtifactPath(prefix, sessionID, executionID, extension string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		sessionID = "adhoc"
	}
	if err := validatePathComponent(sessionID, "session id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(executionID, "execution id"); err != nil {
		return "", err
	}
	extension = strings.TrimPrefix(extension, ".")
	if err := validatePathComponent(extension, "extension"); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s.%s", executionID, extension)
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return path.Join(sessionID, name), nil
	}
	for _, part := range strings.Split(prefix, "/") {
		if err := validatePathComponent(part, "prefix"); err != nil {
			return "", err
		}
	}
	return path.Join(prefix, sessionID, name), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) || strings.Contains(value, "..") {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
