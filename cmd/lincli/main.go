package main

import (
	"os"

	"github.com/robotalks/lin.go/pkg/cli/sh"
	"github.com/robotalks/lin.go/pkg/lin"
	"github.com/robotalks/lin.go/pkg/lin/serialport"

	_ "github.com/robotalks/lin.go/pkg/cli/cmds/bus"
)

//go-build: CGO_ENABLED=0

func init() {
	if os.Getenv("LIN_PORT") == "" {
		serialport.Default().Name = sh.SimPort
	}
	lin.SetupFlags()
	serialport.SetupFlags()
}

func main() {
	sh.Main()
}
