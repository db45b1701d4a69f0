/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/ssargent/kvsnap/cmd/kvsnap/cmd"

func main() {
	cmd.Execute()
}
