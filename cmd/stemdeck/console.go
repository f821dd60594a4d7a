/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the stemdeck multi-track stem player.
 * This code is provided "as is", without warranty of any kind.
 */
package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/chzyer/readline"
)

func completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(verbs))
	for _, v := range verbs {
		items = append(items, readline.PcItem(v))
	}
	return readline.NewPrefixCompleter(items...)
}

// runConsole reads commands until QUIT, EOF or interrupt.
func runConsole(sess *session) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:       "stemdeck> ",
		AutoComplete: completer(),
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		out, quit := sess.execute(line)
		if out != "" {
			fmt.Fprintln(rl.Stdout(), out)
		}
		if quit {
			return nil
		}
	}
}
