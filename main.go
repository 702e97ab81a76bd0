// File: main.go
package main

import "github.com/xkilldash9x/clipsight/cmd"

func main() {
	cmd.Execute()
}
