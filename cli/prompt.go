package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// terminalPrompt reads answers from the controlling terminal. Passwords are
// read without echo; questions ending in "(y/n)" read one visible line. It
// returns nil when in is not a terminal, which makes PROMPT an error
// instead of a hang.
func terminalPrompt(in *os.File, out io.Writer) func(label string) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	reader := bufio.NewReader(in)
	return func(label string) (string, error) {
		if strings.HasSuffix(label, "(y/n)") {
			_, _ = fmt.Fprintf(out, "%s ", label)
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return "", err
			}
			return strings.TrimSpace(line), nil
		}

		_, _ = fmt.Fprintf(out, "Enter %s: ", label)
		pw, err := term.ReadPassword(fd)
		_, _ = fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}
}
