package git

import (
	"fmt"
	"regexp"
	"strings"
)

// Match: owner/repo where both parts contain only alphanumeric, hyphen, underscore, dot
var (
	repoFormat = regexp.MustCompile(`^[a-zA-Z0-9_.-]+/[a-zA-Z0-9_.-]+$`)
	nameFormat = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

// ValidateRepositoryFormat validates that a repository string is in the correct owner/repo format
func ValidateRepositoryFormat(repo string) error {
	if !repoFormat.MatchString(repo) {
		return fmt.Errorf("invalid repository format: %q - expected format: owner/repo", repo)
	}

	return nil
}

// ParseRepository accepts "name" or "owner/name". Owner is empty when omitted.
func ParseRepository(repo string) (owner, name string, err error) {
	if strings.Contains(repo, "/") {
		if err := ValidateRepositoryFormat(repo); err != nil {
			return "", "", err
		}
		owner, name, _ = strings.Cut(repo, "/")
		return owner, name, nil
	}

	if !nameFormat.MatchString(repo) || repo == "." || repo == ".." {
		return "", "", fmt.Errorf("invalid repository name: %q - expected name or owner/name", repo)
	}
	return "", repo, nil
}
