package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// lineReader yields input lines without the trailing newline.
type lineReader interface {
	ReadLine() (string, error)
}

type scanReader struct {
	scanner *bufio.Scanner
}

func newScanReader(r io.Reader) *scanReader {
	return &scanReader{scanner: bufio.NewScanner(r)}
}

func (s *scanReader) ReadLine() (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

// console is the interactive input and output of the chat loop.
type console struct {
	in      lineReader
	out     io.Writer
	restore func()
}

func (c *console) Close() {
	if c.restore != nil {
		c.restore()
	}
}

// openConsole puts a terminal stdin into raw mode with a line editor.
// Otherwise input is scanned line by line from in.
func openConsole(in io.Reader, out io.Writer, prompt string) (*console, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		state, err := term.MakeRaw(fd)
		if err != nil {
			return nil, err
		}
		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{f, out}, prompt)
		if width, height, err := term.GetSize(fd); err == nil {
			_ = t.SetSize(width, height)
		}
		return &console{in: t, out: t, restore: func() { _ = term.Restore(fd, state) }}, nil
	}
	return &console{in: newScanReader(in), out: out}, nil
}

// readSecret reads a password without echo when in is a terminal.
func readSecret(in io.Reader, out io.Writer, prompt string) (string, error) {
	_, _ = fmt.Fprint(out, prompt)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		data, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	line, err := readLine(in)
	if err != nil {
		return "", err
	}
	return line, nil
}

// readLine reads one line byte by byte so nothing after it is consumed.
func readLine(in io.Reader) (string, error) {
	var b strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				return strings.TrimRight(b.String(), "\r"), nil
			}
			b.WriteByte(buf[0])
		}
		if err != nil {
			if errors.Is(err, io.EOF) && b.Len() > 0 {
				return strings.TrimRight(b.String(), "\r"), nil
			}
			return "", err
		}
	}
}

// prompt asks for a value, reading it from in.
func prompt(in io.Reader, out io.Writer, label string) (string, error) {
	_, _ = fmt.Fprint(out, label)
	line, err := readLine(in)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
