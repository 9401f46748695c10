// Package main provides the gobridge command-line interface
package main

func main() {
	Execute()
}
