package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

func main() {
	usernamePtr := flag.String("u", "", "Username for authentication")
	passwordPtr := flag.String("p", "", "Password for authentication")
	timeoutPtr := flag.Duration("timeout", 60*time.Second, "Request timeout")
	flag.Parse()

	addr := "localhost:5876"
	if flag.NArg() > 0 {
		addr = flag.Arg(0)
	}

	c := newCLI(newAPIClient(addr, *timeoutPtr))
	fmt.Println(colorOK("pride-store client for ", c.api.baseURL))
	if err := c.run(*usernamePtr, *passwordPtr); err != nil {
		fmt.Fprintln(os.Stderr, colorErr("Error: ", err))
		os.Exit(1)
	}
}
