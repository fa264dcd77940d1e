// Package cli runs line oriented debug consoles.
package cli

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
)

// MainLoop calls exec for each input line. Interactive prompt with completion
// when stdin is a terminal, otherwise every line of stdin in order.
func MainLoop(tag string, exec func(line string), complete func(d prompt.Document) []prompt.Suggest) error {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		// TODO OptionHistory
		prompt.New(exec, complete,
			prompt.OptionTitle(tag),
			prompt.OptionPrefix(tag+"> "),
		).Run()
		return nil
	}
	return RunLines(os.Stdin, exec)
}

// RunLines reads r to the end and calls exec for every non empty line.
func RunLines(r io.Reader, exec func(line string)) error {
	all, err := ioutil.ReadAll(r)
	if err != nil {
		return errors.Annotate(err, "read input")
	}
	for _, lineb := range bytes.Split(all, []byte{'\n'}) {
		line := string(bytes.TrimSpace(lineb))
		if line != "" {
			exec(line)
		}
	}
	return nil
}

// Completer suggests fuzzy matches of word before cursor.
func Completer(suggests []prompt.Suggest) func(d prompt.Document) []prompt.Suggest {
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterFuzzy(suggests, d.GetWordBeforeCursor(), true)
	}
}
