package main

import (
	"github.com/notionmirror/notionmirror/cmd"
	"github.com/notionmirror/notionmirror/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
