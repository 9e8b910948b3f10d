// Command mnemosyne runs the Mnemosyne review application in an embedded
// interpreter and shows its review screen in the terminal.
package main

func main() {
	Execute()
}
