package credentials

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
)

// EnvToken is the variable consulted when no token flag is given
const EnvToken = "GITHUB_TOKEN"

var ErrNoToken = errors.New("GitHub token is required")

// Source records where a token came from
type Source string

const (
	SourceFlag   Source = "flag"
	SourceEnv    Source = "environment"
	SourcePrompt Source = "prompt"
)

type Token struct {
	Value  string
	Source Source
}

// PromptFunc asks the user for a token
type PromptFunc func() (string, error)

// Resolver walks flag, environment, then prompt
type Resolver struct {
	LookupEnv func(string) (string, bool)
	// Prompt is only used when Interactive is true
	Prompt      PromptFunc
	Interactive bool
}

// Resolve returns the first non-blank token. It never returns an empty token without ErrNoToken.
func (r Resolver) Resolve(flagValue string) (Token, error) {
	if v := strings.TrimSpace(flagValue); v != "" {
		return Token{Value: v, Source: SourceFlag}, nil
	}

	if r.LookupEnv != nil {
		if v, ok := r.LookupEnv(EnvToken); ok && strings.TrimSpace(v) != "" {
			return Token{Value: strings.TrimSpace(v), Source: SourceEnv}, nil
		}
	}

	if !r.Interactive || r.Prompt == nil {
		return Token{}, fmt.Errorf("%w: pass --token or set %s", ErrNoToken, EnvToken)
	}

	v, err := r.Prompt()
	if err != nil {
		return Token{}, fmt.Errorf("%w: prompt failed: %w", ErrNoToken, err)
	}
	if v = strings.TrimSpace(v); v == "" {
		return Token{}, ErrNoToken
	}
	return Token{Value: v, Source: SourcePrompt}, nil
}

// HuhPrompt reads a token without echoing it
func HuhPrompt() (string, error) {
	var token string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("GitHub Personal Access Token").
				Description("Needs repo and workflow scopes").
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("token is required")
					}
					return nil
				}).
				Value(&token),
		),
	)

	if err := form.Run(); err != nil {
		return "", err
	}
	return token, nil
}
