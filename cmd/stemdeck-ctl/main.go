package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
)

const (
	socket_file   = "/tmp/stemdeck.sock"
	version_major = 1
	version_minor = 0
	app_name      = "stemdeck-ctl"
)

func main() {
	socket := flag.String("socket", socket_file, "control socket of a running stemdeck")
	quiet := flag.Bool("quiet", false, "hide TIME events")
	flag.Parse()

	fmt.Printf("%s V.%d.%d\n", app_name, version_major, version_minor)
	conn, err := net.Dial("unix", *socket)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Println(`Type a command, "QUIT" to exit`)

	if err := relay(conn, os.Stdin, os.Stdout, *quiet); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// relay forwards input lines to the socket and prints what comes back until
// either side closes.
func relay(conn io.ReadWriteCloser, in io.Reader, out io.Writer, quiet bool) error {
	werr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			if _, err := io.WriteString(conn, line+"\n"); err != nil {
				werr <- fmt.Errorf("write: %w", err)
				return
			}
		}
		// stdin closed; ask the server to hang up
		_, _ = io.WriteString(conn, "QUIT\n")
		werr <- nil
	}()

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := sc.Text()
		if quiet && strings.HasPrefix(line, "EVENT ") && strings.Contains(line, `"type":"TIME"`) {
			continue
		}
		fmt.Fprintln(out, line)
		if line == "BYE" {
			return nil
		}
	}
	select {
	case err := <-werr:
		return err
	default:
		return sc.Err()
	}
}
