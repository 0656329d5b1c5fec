package main

import (
	"os"

	"github.com/michaelpento.lv/dexarb/cmd"
	"github.com/michaelpento.lv/dexarb/utils"
)

func main() {
	err := cmd.Execute()
	utils.CleanupLogger()
	if err != nil {
		os.Exit(1)
	}
}
