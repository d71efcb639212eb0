package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "crazyclient"
	app.Usage = "Connect to and fly a Crazyflie over Bluetooth or a Crazyradio"
	app.Flags = GLOBAL_FLAGS
	app.Commands = COMMANDS

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
