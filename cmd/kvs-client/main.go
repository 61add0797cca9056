// Command kvs-client is a one-shot CLI front-end to the key/value
// protocol: it sends a single request to a running kvs-server and
// prints the result.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/flintkv/flintkv/internal/client"
	"github.com/flintkv/flintkv/internal/protocol"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  kvs-client [--addr IP:PORT] get <KEY>")
	fmt.Fprintln(os.Stderr, "  kvs-client [--addr IP:PORT] set <KEY> <VALUE>")
	fmt.Fprintln(os.Stderr, "  kvs-client [--addr IP:PORT] rm <KEY>")
}

func main() {
	addr := flag.String("addr", "127.0.0.1:4000", "server address")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd, key := args[0], args[1]
	c := client.New(*addr)

	switch cmd {
	case "get":
		resp, err := c.Get(key)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		switch resp.Kind {
		case protocol.ResponseValue:
			fmt.Println(resp.Value)
		case protocol.ResponseNotFound:
			fmt.Println("Key not found")
		default:
			fmt.Fprintln(os.Stderr, resp.Error)
			os.Exit(1)
		}

	case "set":
		if len(args) < 3 {
			usage()
			os.Exit(1)
		}
		value := args[2]
		resp, err := c.Set(key, value)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if resp.Kind != protocol.ResponseSuccess {
			fmt.Fprintln(os.Stderr, resp.Error)
			os.Exit(1)
		}

	case "rm":
		resp, err := c.Remove(key)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		switch resp.Kind {
		case protocol.ResponseSuccess:
		case protocol.ResponseNotFound:
			fmt.Fprintln(os.Stderr, "Key not found")
			os.Exit(1)
		default:
			fmt.Fprintln(os.Stderr, resp.Error)
			os.Exit(1)
		}

	default:
		usage()
		os.Exit(1)
	}
}
