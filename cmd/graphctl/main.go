package main

import "github.com/castillorm/graphctl/cmd/graphctl/cmd"

func main() {
	cmd.Execute()
}
