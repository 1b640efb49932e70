package cmd

import (
	"os"

	"github.com/Alia5/lt3/internal/board"
)

type Keymap struct{}

func (k *Keymap) Run() error {
	return board.WriteKeymap(os.Stdout, board.Layers)
}
