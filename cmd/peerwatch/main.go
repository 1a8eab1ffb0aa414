package main

import (
	"github.com/FluffyKebab/peerwatch/cmd/peerwatch/cmd"
)

func main() {
	cmd.Execute()
}
