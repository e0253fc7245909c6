package main

import (
	"os"
	"strings"

	"github.com/jgivc/datasync/cmd/datasync/root"
)

func main() {
	if err := root.Execute(os.Args[1:]); err != nil {
		msg := strings.Join(strings.Fields(err.Error()), " ")
		if msg == "" {
			msg = "error"
		}
		_, _ = os.Stderr.WriteString(msg + "\n")
		os.Exit(1)
	}
}
