package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/GriffinCanCode/WindowArranger/backend/internal/api/client"
)

const usage = `usage: arrangerctl [-addr url] <command> [args]

commands:
  state | start | stop | switch
  arrangement
  slots
  save <name> [max]
  load <name> [index]
  copy <src> <dst> [index] [max]
  copy-array <src> <dst>
  delete <name> [index]
  delete-array <name>
  dump | counter | clear
  settings
  set <key> <true|false>
`

func main() {
	addr := flag.String("addr", envOr("ARRANGER_ADDR", "http://127.0.0.1:8010"), "daemon base url")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := run(ctx, client.New(*addr), flag.Arg(0), flag.Args()[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if out != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	}
}

func run(ctx context.Context, c *client.Client, cmd string, args []string) (interface{}, error) {
	switch cmd {
	case "state":
		return c.State(ctx)
	case "start":
		return c.Start(ctx)
	case "stop":
		return c.Stop(ctx)
	case "switch":
		return c.Switch(ctx)
	case "arrangement":
		return c.Arrangement(ctx)
	case "slots":
		return c.Slots(ctx)
	case "save":
		if len(args) < 1 {
			return nil, errUsage
		}
		return nil, c.Save(ctx, args[0], intArg(args, 1, 10))
	case "load":
		if len(args) < 1 {
			return nil, errUsage
		}
		return nil, c.Load(ctx, args[0], intArg(args, 1, 0))
	case "copy":
		if len(args) < 2 {
			return nil, errUsage
		}
		return nil, c.Copy(ctx, args[0], args[1], intArg(args, 2, 0), intArg(args, 3, 10))
	case "copy-array":
		if len(args) < 2 {
			return nil, errUsage
		}
		return nil, c.CopyArray(ctx, args[0], args[1])
	case "delete":
		if len(args) < 1 {
			return nil, errUsage
		}
		return nil, c.Delete(ctx, args[0], intArg(args, 1, 0))
	case "delete-array":
		if len(args) < 1 {
			return nil, errUsage
		}
		return nil, c.DeleteArray(ctx, args[0])
	case "dump":
		return c.Dump(ctx)
	case "counter":
		return c.Counter(ctx)
	case "clear":
		return nil, c.Clear(ctx)
	case "settings":
		return c.Settings(ctx)
	case "set":
		if len(args) < 2 {
			return nil, errUsage
		}
		v, err := strconv.ParseBool(args[1])
		if err != nil {
			return nil, err
		}
		return nil, c.SetSetting(ctx, args[0], v)
	default:
		return nil, fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}

var errUsage = fmt.Errorf("missing arguments\n\n%s", usage)

func intArg(args []string, i, def int) int {
	if i >= len(args) {
		return def
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return def
	}
	return n
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
