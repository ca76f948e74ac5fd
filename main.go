package main

import "github.com/openautogroup/lotview/cmd"

func main() {
	cmd.Execute()
}
