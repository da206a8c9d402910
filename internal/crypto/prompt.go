package crypto

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompt reads a secret from the terminal without echoing it.
// When stdin is not a terminal the first line of input is used.
func Prompt(label string, in *os.File, out io.Writer) (string, error) {
	fmt.Fprintf(out, "%s: ", label)

	var value string
	if term.IsTerminal(int(in.Fd())) {
		raw, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", label, err)
		}
		value = string(raw)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read %s: %w", label, err)
		}
		value = line
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%s cannot be empty", label)
	}
	return value, nil
}
