// Command edgeauth authenticates requests with Firebase ID tokens, either as
// a Lambda@Edge viewer-request function or as a local reverse proxy.
package main

import (
	"os"
)

func main() {
	root := newRootCmd()
	root.SetArgs(defaultArgs(os.Args[1:], os.Getenv))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
