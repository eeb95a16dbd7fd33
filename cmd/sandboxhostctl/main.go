// Command sandboxhostctl is a demonstration/debugging harness for the
// sandbox package: it wires the config and logging packages together
// and drives a handful of syscalls by hand from the command line.
// The bytecode engine that would normally drive sandbox.Context is an
// external collaborator this repository does not implement.
package main

func main() {
	Execute()
}
