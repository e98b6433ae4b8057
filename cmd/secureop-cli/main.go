package main

import "secureop-core/cmd/secureop-cli/cmd"

func main() {
	cmd.Execute()
}
