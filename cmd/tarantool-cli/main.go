package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pior/tarantool"
)

func main() {
	host := flag.String("host", "127.0.0.1", "server host")
	port := flag.Int("port", 3301, "server port")
	user := flag.String("user", "", "user name (empty = no auth)")
	password := flag.String("password", "", "password")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Parse()

	cfg := tarantool.Config{
		Host:            *host,
		Port:            *port,
		User:            *user,
		Password:        *password,
		RequestTimeout:  *timeout,
		ReconnectPeriod: time.Second,
	}

	ctx := context.Background()
	client, err := tarantool.Connect(ctx, cfg)
	if err != nil {
		fmt.Printf("Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	fmt.Printf("Connected to %s\n", cfg.Addr())
	fmt.Println("Commands: ping, select <space> <key>, insert <space> <v1> <v2> ..., replace <space> <v1> ...,")
	fmt.Println("          delete <space> <key>, update <space> <key> <field> <value>, call <proc> [args...],")
	fmt.Println("          schema, stats, quit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(parts) == 0 {
			continue
		}

		switch strings.ToLower(parts[0]) {
		case "ping":
			handlePing(ctx, client)

		case "select":
			if len(parts) != 3 {
				fmt.Println("Usage: select <space> <key>")
				continue
			}
			handleSelect(ctx, client, parts[1], parts[2])

		case "insert":
			if len(parts) < 3 {
				fmt.Println("Usage: insert <space> <v1> <v2> ...")
				continue
			}
			handleStore(ctx, client, parts[1], parts[2:], client.Insert)

		case "replace":
			if len(parts) < 3 {
				fmt.Println("Usage: replace <space> <v1> <v2> ...")
				continue
			}
			handleStore(ctx, client, parts[1], parts[2:], client.Replace)

		case "delete", "del":
			if len(parts) != 3 {
				fmt.Println("Usage: delete <space> <key>")
				continue
			}
			handleDelete(ctx, client, parts[1], parts[2])

		case "update":
			if len(parts) != 5 {
				fmt.Println("Usage: update <space> <key> <field_no> <value>")
				continue
			}
			handleUpdate(ctx, client, parts[1], parts[2], parts[3], parts[4])

		case "call":
			if len(parts) < 2 {
				fmt.Println("Usage: call <proc> [args...]")
				continue
			}
			handleCall(ctx, client, parts[1], parts[2:])

		case "schema":
			handleSchema(client)

		case "stats":
			handleStats(client)

		case "help":
			fmt.Println("Commands:")
			fmt.Println("  ping                                  - Round-trip a no-op request")
			fmt.Println("  select <space> <key>                  - Read tuples by primary key")
			fmt.Println("  insert <space> <v1> <v2> ...          - Store a new tuple")
			fmt.Println("  replace <space> <v1> <v2> ...         - Store a tuple, overwriting")
			fmt.Println("  delete <space> <key>                  - Remove a tuple by primary key")
			fmt.Println("  update <space> <key> <field> <value>  - Assign one field")
			fmt.Println("  call <proc> [args...]                 - Invoke a stored procedure")
			fmt.Println("  schema                                - Show the cached schema")
			fmt.Println("  stats                                 - Show client statistics")
			fmt.Println("  quit                                  - Exit")

		case "quit", "exit":
			fmt.Println("Goodbye!")
			return

		default:
			fmt.Printf("Unknown command: %s. Type 'help' for available commands.\n", parts[0])
		}
	}
}

// parseValue interprets a CLI token: digits become an unsigned integer
// (coded per the field type), everything else stays a string.
func parseValue(s string) any {
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n
	}
	return s
}

func parseValues(tokens []string) []any {
	vals := make([]any, len(tokens))
	for i, t := range tokens {
		vals[i] = parseValue(t)
	}
	return vals
}

func printResult(res *tarantool.Result, duration time.Duration) {
	fmt.Printf("%d tuple(s) (took %v)\n", res.Len(), duration)
	res.EachTuple(func(t *tarantool.Tuple) bool {
		fields := make([]string, t.Len())
		for i := 0; i < t.Len(); i++ {
			fields[i] = formatField(t.Field(i))
		}
		fmt.Printf("  [%s]\n", strings.Join(fields, ", "))
		return true
	})
}

func formatField(v any) string {
	if b, ok := v.([]byte); ok {
		return strconv.Quote(string(b))
	}
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprintf("%v", v)
}

func handlePing(ctx context.Context, client *tarantool.Client) {
	start := time.Now()
	_, err := client.Ping().Result(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("OK (took %v)\n", time.Since(start))
}

func handleSelect(ctx context.Context, client *tarantool.Client, space, key string) {
	start := time.Now()
	f := client.Select(tarantool.ParseSpace(space), tarantool.PrimaryIndex(),
		[]any{parseValue(key)}, tarantool.SelectOptions{})
	res, err := f.Result(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	printResult(res, time.Since(start))
}

func handleStore(ctx context.Context, client *tarantool.Client, space string, values []string,
	op func(tarantool.Space, []any) *tarantool.Future) {
	start := time.Now()
	res, err := op(tarantool.ParseSpace(space), parseValues(values)).Result(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	printResult(res, time.Since(start))
}

func handleDelete(ctx context.Context, client *tarantool.Client, space, key string) {
	start := time.Now()
	res, err := client.Delete(tarantool.ParseSpace(space), []any{parseValue(key)}).Result(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	printResult(res, time.Since(start))
}

func handleUpdate(ctx context.Context, client *tarantool.Client, space, key, field, value string) {
	fieldNo, err := strconv.ParseUint(field, 10, 32)
	if err != nil {
		fmt.Printf("Invalid field number: %v\n", err)
		return
	}

	start := time.Now()
	f := client.Update(tarantool.ParseSpace(space), []any{parseValue(key)},
		[]tarantool.Op{tarantool.OpSet(tarantool.FieldNo(uint32(fieldNo)), parseValue(value))})
	res, err := f.Result(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	printResult(res, time.Since(start))
}

func handleCall(ctx context.Context, client *tarantool.Client, proc string, args []string) {
	start := time.Now()
	res, err := client.Call(proc, parseValues(args)).Result(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	printResult(res, time.Since(start))
}

func handleSchema(client *tarantool.Client) {
	spaces := client.Spaces()
	if spaces == nil {
		fmt.Println("Schema not loaded (invalidated or never fetched)")
		return
	}
	fmt.Printf("Schema version %d, %d space(s)\n", client.SchemaVersion(), spaces.Len())
}

func handleStats(client *tarantool.Client) {
	stats := client.Stats()
	conn := client.Connection().Stats()

	fmt.Println("Operations:")
	fmt.Printf("  pings=%d inserts=%d replaces=%d deletes=%d selects=%d updates=%d upserts=%d calls=%d\n",
		stats.Pings, stats.Inserts, stats.Replaces, stats.Deletes,
		stats.Selects, stats.Updates, stats.Upserts, stats.Calls)
	fmt.Printf("  errors=%d schema_loads=%d schema_retries=%d\n",
		stats.Errors, stats.SchemaLoads, stats.SchemaRetries)
	fmt.Println("Transport:")
	fmt.Printf("  sent=%d received=%d timeouts=%d connects=%d disconnects=%d reconnect_attempts=%d\n",
		conn.RequestsSent, conn.ResponsesReceived, conn.Timeouts,
		conn.Connects, conn.Disconnects, conn.ReconnectAttempts)
}
