package main

import (
	"os"

	"alfredoptarigan/cv-matcher/cmd/cvmatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
