// main.go
package main

import "github.com/openbim/ifcpipeline/cmd"

func main() {
	cmd.Execute()
}
