package main

import (
	"fmt"
	"io"

	"github.com/pkg/browser"
)

func init() {
	// keep xdg-open chatter out of the chat transcript
	browser.Stdout, browser.Stderr = io.Discard, io.Discard
}

// browserOpener prints the link and hands it to the desktop's browser.
type browserOpener struct {
	out io.Writer
}

func (o browserOpener) Open(url string) error {
	fmt.Fprintf(o.out, "link: %s\n", url)
	if err := browser.OpenURL(url); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return nil
}
