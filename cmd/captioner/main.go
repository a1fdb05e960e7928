// Command captioner writes a caption for every photo in a library and keeps
// a resumable journal of the results.
package main

func main() {
	Execute()
}
