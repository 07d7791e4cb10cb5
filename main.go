package main

import "github.com/quillchat/quill/cmd"

func main() {
	cmd.Execute()
}
