package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/desertthunder/witx/internal/shared"
	"github.com/desertthunder/witx/internal/ui"
)

const maxPromptAttempts = 3

// linePrompter asks the interactive questions one line at a time when no terminal is attached.
type linePrompter struct {
	in  *bufio.Reader
	out io.Writer
	eof bool
}

func newLinePrompter(in *bufio.Reader, out io.Writer) *linePrompter {
	return &linePrompter{in: in, out: out}
}

// readLine returns the next line without its terminator. The final unterminated line is returned before io.EOF.
func (p *linePrompter) readLine() (string, error) {
	if p.eof {
		return "", io.EOF
	}
	line, err := p.in.ReadString('\n')
	if errors.Is(err, io.EOF) {
		p.eof = true
		if line == "" {
			return "", io.EOF
		}
		err = nil
	}
	return strings.TrimSpace(line), err
}

// ask prompts for field, falling back to def on an empty answer.
func (p *linePrompter) ask(field int, def string) (string, error) {
	for attempt := 1; ; attempt++ {
		if def != "" {
			fmt.Fprintf(p.out, "%s [%s]: ", ui.Label(field), def)
		} else {
			fmt.Fprintf(p.out, "%s: ", ui.Label(field))
		}

		value, err := p.readLine()
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		if value == "" {
			value = def
		}

		verr := ui.ValidateField(field, value)
		if verr == nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(p.out)
			}
			return value, nil
		}

		fmt.Fprintf(p.out, "\n%v\n", verr)
		if errors.Is(err, io.EOF) || attempt >= maxPromptAttempts {
			return "", fmt.Errorf("%w: %v", shared.ErrMissingArgument, verr)
		}
	}
}

// askAll asks the four endpoint questions in order.
func (p *linePrompter) askAll(defaults ui.Answers) (ui.Answers, error) {
	fields := []struct {
		field int
		dst   *string
	}{
		{ui.SourceURLField, &defaults.SourceURL},
		{ui.SourceProjectField, &defaults.SourceProject},
		{ui.DestURLField, &defaults.DestURL},
		{ui.DestProjectField, &defaults.DestProject},
	}

	for _, f := range fields {
		value, err := p.ask(f.field, *f.dst)
		if err != nil {
			return ui.Answers{}, err
		}
		*f.dst = value
	}
	return defaults, nil
}

// waitForEnter blocks until a line is read or input ends.
func (p *linePrompter) waitForEnter() error {
	_, err := p.readLine()
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
