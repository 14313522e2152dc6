package main

import "github.com/MuslimSoftware/LifeOS-sub001/cmd/lifeos/cli"

func main() {
	cli.Execute()
}
