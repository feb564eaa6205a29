// Package main is the entry point for AgentGate.
package main

func main() {
	Execute()
}
