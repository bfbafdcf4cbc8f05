package main

import (
	"github.com/domainsale/forsale/cmd"
)

//nolint:gochecknoglobals
var (
	version   = "undefined"
	buildTime = "undefined"
)

func main() {
	cmd.Execute(version, buildTime)
}
