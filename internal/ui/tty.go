package ui

import (
	"os"

	"github.com/mattn/go-isatty"
)

// IsTTY reports whether both stdin and stdout are terminals
func IsTTY() bool {
	return isTerminal(os.Stdin.Fd()) && isTerminal(os.Stdout.Fd())
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
