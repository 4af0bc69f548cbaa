package main

import (
	"os"

	"github.com/catherinevee/cloudboard/cmd/cloudboard/commands"
)

func main() {
	os.Exit(commands.Execute())
}
