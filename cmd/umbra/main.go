package main

import (
	"github.com/umbra-privacy/umbra/cmd/umbra/cmd"
)

func main() {
	cmd.Execute()
}
