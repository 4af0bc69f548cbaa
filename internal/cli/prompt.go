package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// Prompt provides interactive prompting capabilities
type Prompt struct {
	in     *os.File
	reader *bufio.Reader
	out    io.Writer
}

// NewPrompt creates a prompt on stdin and stderr
func NewPrompt() *Prompt {
	return &Prompt{in: os.Stdin, reader: bufio.NewReader(os.Stdin), out: os.Stderr}
}

// NewPromptFrom creates a prompt reading r, used when input is piped
func NewPromptFrom(r io.Reader, out io.Writer) *Prompt {
	p := &Prompt{reader: bufio.NewReader(r), out: out}
	if f, ok := r.(*os.File); ok {
		p.in = f
	}
	return p
}

func (p *Prompt) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks for yes/no confirmation
func (p *Prompt) Confirm(message string, defaultYes bool) bool {
	defaultStr := "y/N"
	if defaultYes {
		defaultStr = "Y/n"
	}
	fmt.Fprintf(p.out, "%s [%s]: ", message, defaultStr)

	input, err := p.readLine()
	if err != nil || input == "" {
		return defaultYes
	}
	input = strings.ToLower(input)
	return input == "y" || input == "yes"
}

// Input asks for text input
func (p *Prompt) Input(message string, defaultValue string) (string, error) {
	if defaultValue != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", message, defaultValue)
	} else {
		fmt.Fprintf(p.out, "%s: ", message)
	}

	input, err := p.readLine()
	if err != nil {
		return "", err
	}
	if input == "" {
		return defaultValue, nil
	}
	return input, nil
}

// Password asks for a secret. Input is masked when reading a terminal.
func (p *Prompt) Password(message string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", message)

	if p.in != nil && term.IsTerminal(int(p.in.Fd())) {
		b, err := term.ReadPassword(int(p.in.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return p.readLine()
}

// Select asks the user to select from a list of options
func (p *Prompt) Select(message string, options []string) (int, error) {
	if len(options) == 0 {
		return -1, fmt.Errorf("no options provided")
	}

	fmt.Fprintln(p.out, message)
	for i, option := range options {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, option)
	}
	fmt.Fprintf(p.out, "Select option [1-%d]: ", len(options))

	input, err := p.readLine()
	if err != nil {
		return -1, err
	}
	choice, err := strconv.Atoi(input)
	if err != nil {
		return -1, fmt.Errorf("invalid input: %s", input)
	}
	if choice < 1 || choice > len(options) {
		return -1, fmt.Errorf("invalid selection: %d", choice)
	}
	return choice - 1, nil
}
