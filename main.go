package main

import (
	"flag"
	"fmt"
	"os"
)

const version = "0.2.0"

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "simulate":
		handleSimulate(args)
	case "fit":
		handleFit(args)
	case "scan":
		handleScan(args)
	case "limit":
		handleLimit(args)
	case "version":
		fmt.Printf("sigmav-report version %s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`sigmav-report - dark matter spectral fitting and limit derivation

Usage: sigmav-report <command> [options]

Commands:
  simulate   Generate a Poisson event dataset from a model
  fit        Fit the model to a dataset and report the test statistic
  scan       Profile the likelihood over the signal normalisation
  limit      Derive a one-sided upper limit on the cross section
  version    Show sigmav-report version
  help       Show this help message

Common Flags:
  --grid <file>        Spectral grid JSON (required)
  --channel <id>       Annihilation channel ID in the grid
  --mass <GeV>         Dark matter mass in GeV
  --jfactor <J>        Astrophysical J-factor (GeV^2 cm^-5)
  --sigmav <v>         Cross section (cm^3 s^-1); defaults to the
                       grid's reference value
  --norm <n>           Set the flux normalisation directly, overriding
                       --jfactor/--sigmav
  --db <file>          Record results in a SQLite database

Examples:
  # Simulate 5 hours of data for a 1 TeV signal
  sigmav-report simulate --grid grid.json --channel 5 --mass 1000 \
      --jfactor 1.8621e18 --duration 18000 --area 1e10 --out events.json

  # Fit and report the detection test statistic
  sigmav-report fit --grid grid.json --channel 5 --mass 1000 \
      --jfactor 1.8621e18 --dataset events.json --db results.db

  # Scan the normalisation profile and emit plots
  sigmav-report scan --grid grid.json --channel 5 --mass 1000 \
      --jfactor 1.8621e18 --dataset events.json --plots plots/

  # 95% CL upper limit on the cross section
  sigmav-report limit --grid grid.json --channel 5 --mass 1000 \
      --jfactor 1.8621e18 --dataset events.json --cl 0.95`)
}
