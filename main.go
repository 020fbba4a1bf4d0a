/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package main

import "github.com/krobus00/mt5-gateway/cmd"

func main() {
	cmd.Execute()
}
