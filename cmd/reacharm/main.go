package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config  string `short:"c" long:"config" default:"reacharm.yaml" description:"Config file (.yaml, or .json)"`
	LogFile string `long:"log-file" default:"reacharm.log" description:"Log file, rotated"`
	Verbose bool   `short:"v" long:"verbose" description:"Log at debug level"`

	Run   RunCommand   `command:"run" description:"Drive the appendage from the keyboard"`
	Solve SolveCommand `command:"solve" description:"Print solver output across the reach range"`
	Tune  TuneCommand  `command:"tune" description:"Hold one motor at a target with live-reloaded gains"`
	Setup SetupCommand `command:"setup" description:"Find the servo bus, bind devices and record their ranges"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "reacharm - slide, arm and wrist control for a reach-driven appendage"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
