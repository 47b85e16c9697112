package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Swapped out by tests.
var (
	termIsTerminal = term.IsTerminal
	readPassword   = term.ReadPassword
)

// promptSecret reads a value without echo. It fails when stdin is not a
// terminal so scripts never hang waiting for input.
func promptSecret(out io.Writer, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !termIsTerminal(fd) {
		return "", fmt.Errorf("%s is not set and stdin is not a terminal", strings.ToLower(label))
	}
	fmt.Fprintf(out, "%s: ", label)
	b, err := readPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(string(b)), nil
}

// promptLine asks for a value, returning def when the answer is empty.
func promptLine(r *bufio.Reader, out io.Writer, label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	input, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return def, nil
	}
	return input, nil
}

// confirm asks a yes/no question; anything but y or yes is a no.
func confirm(r *bufio.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	input, _ := r.ReadString('\n')
	input = strings.ToLower(strings.TrimSpace(input))
	return input == "y" || input == "yes"
}
