package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/netfsd/netfsd/client"
	"github.com/netfsd/netfsd/internal/netlog"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:      "netfsd-client",
		Usage:     "interactive client for a netfsd cluster",
		ArgsUsage: "NS_HOST NS_PORT",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	if ctx.Args().Len() < 2 {
		return fmt.Errorf("usage: netfsd-client NS_HOST NS_PORT")
	}
	nsHost := ctx.Args().Get(0)
	nsPort, err := strconv.Atoi(ctx.Args().Get(1))
	if err != nil {
		return fmt.Errorf("invalid NS_PORT %q: %w", ctx.Args().Get(1), err)
	}

	log := netlog.New("netfsd-client", ctx.Bool("debug"))
	engine, err := client.NewEngine(client.Config{NSHost: nsHost, NSPort: nsPort, Logger: log})
	if err != nil {
		return fmt.Errorf("configuring client: %w", err)
	}

	return repl(engine)
}

// repl runs a simple line-oriented command loop over stdin:
//
//	create PATH
//	write PATH OFFSET DATA
//	read PATH OFFSET LENGTH
//	delete PATH
//	stream PATH START CHUNK_SIZE
//	info PATH
//	help
//	exit
func repl(engine *client.Engine) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("netfsd-client ready (create/write/read/delete/stream/info/help/exit)")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd := fields[0]

		switch cmd {
		case "quit", "exit":
			return nil
		case "create":
			if len(fields) != 2 {
				fmt.Println("usage: create PATH")
				continue
			}
			if err := engine.Create(fields[1]); err != nil {
				fmt.Println("error:", err)
			}
		case "write":
			if len(fields) < 4 {
				fmt.Println("usage: write PATH OFFSET DATA")
				continue
			}
			offset, err := strconv.ParseUint(fields[2], 10, 64)
			if err != nil {
				fmt.Println("invalid offset:", err)
				continue
			}
			data := strings.Join(fields[3:], " ")
			if err := engine.Write(fields[1], offset, []byte(data)); err != nil {
				fmt.Println("error:", err)
			}
		case "read":
			if len(fields) != 4 {
				fmt.Println("usage: read PATH OFFSET LENGTH")
				continue
			}
			offset, err := strconv.ParseUint(fields[2], 10, 64)
			if err != nil {
				fmt.Println("invalid offset:", err)
				continue
			}
			length, err := strconv.ParseUint(fields[3], 10, 32)
			if err != nil {
				fmt.Println("invalid length:", err)
				continue
			}
			data, err := engine.Read(fields[1], offset, uint32(length))
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("%s\n", data)
		case "delete":
			if len(fields) != 2 {
				fmt.Println("usage: delete PATH")
				continue
			}
			if err := engine.Delete(fields[1]); err != nil {
				fmt.Println("error:", err)
			}
		case "info":
			if len(fields) != 2 {
				fmt.Println("usage: info PATH")
				continue
			}
			info, err := engine.GetFileInfo(fields[1])
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("size=%d permissions=%o\n", info.FileSize, info.Permissions)
		case "stream":
			if len(fields) != 4 {
				fmt.Println("usage: stream PATH START CHUNK_SIZE")
				continue
			}
			start, err := strconv.ParseUint(fields[2], 10, 64)
			if err != nil {
				fmt.Println("invalid start position:", err)
				continue
			}
			chunkSize, err := strconv.ParseUint(fields[3], 10, 32)
			if err != nil {
				fmt.Println("invalid chunk size:", err)
				continue
			}
			err = engine.Stream(fields[1], start, uint32(chunkSize), func(offset uint64, data []byte, isLast bool) error {
				fmt.Printf("chunk offset=%d len=%d last=%t\n", offset, len(data), isLast)
				return nil
			})
			if err != nil {
				fmt.Println("error:", err)
			}
		case "help":
			fmt.Println("commands: create PATH | write PATH OFFSET DATA | read PATH OFFSET LENGTH | delete PATH | stream PATH START CHUNK_SIZE | info PATH | help | exit")
		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
	}
}
