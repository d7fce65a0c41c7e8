package main

import "github.com/oshokin/pkgsync/cmd/pkgsync/cmd"

func main() {
	cmd.Execute()
}
