package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"granitedb/internal"
	"granitedb/internal/engine"
	"granitedb/pkg/util"
)

func createCompleter() *readline.PrefixCompleter {
	commands := []string{"put", "get", "del", "scan", "flush", "stats", "help", "exit"}
	items := make([]readline.PrefixCompleterInterface, 0, len(commands))
	for _, cmd := range commands {
		items = append(items, readline.PcItem(cmd))
	}
	return readline.NewPrefixCompleter(items...)
}

func createReadlineInstance(cfg *internal.GraniteConfig) (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:            cfg.Shell.Prompt,
		HistoryFile:       cfg.Shell.HistoryFile,
		AutoComplete:      createCompleter(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
}

const helpText = `Commands:
  put <key> <value>   store value under key
  get <key>           print the value for key
  del <key>           delete key
  scan                list every key-value pair
  flush               write all dirty pages to disk
  stats               show storage statistics
  help                show this help
  exit                quit`

func runCommand(db *engine.Database, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "put":
		if len(fields) < 3 {
			fmt.Println("usage: put <key> <value>")
			return false
		}
		value := strings.Join(fields[2:], " ")
		if err := db.Put(fields[1], []byte(value)); err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Println("OK")

	case "get":
		if len(fields) != 2 {
			fmt.Println("usage: get <key>")
			return false
		}
		value, err := db.Get(fields[1])
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Println(string(value))

	case "del":
		if len(fields) != 2 {
			fmt.Println("usage: del <key>")
			return false
		}
		if err := db.Delete(fields[1]); err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Println("OK")

	case "scan":
		n := 0
		err := db.Scan(func(key string, value []byte) error {
			fmt.Printf("%s = %s\n", key, value)
			n++
			return nil
		})
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Printf("(%d rows)\n", n)

	case "flush":
		if err := db.Flush(); err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Println("OK")

	case "stats":
		st, err := db.Stats()
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Printf("data_dir:             %s\n", st.DataDir)
		fmt.Printf("file_size:            %d bytes\n", st.FileSizeBytes)
		fmt.Printf("pages:                %d\n", st.PageCount)
		fmt.Printf("heap_first_page_id:   %d\n", st.HeapFirstPageID)
		fmt.Printf("index_header_page_id: %d\n", st.IndexHeaderPageID)

	case "help":
		fmt.Println(helpText)

	case "exit", "quit":
		return true

	default:
		fmt.Printf("unknown command %q, try help\n", fields[0])
	}
	return false
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	util.SetupLogger(level)

	var cfg *internal.GraniteConfig
	if *configPath != "" {
		loaded, err := internal.LoadConfig(*configPath)
		if err != nil {
			slog.Error("load config failed", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = internal.DefaultConfig()
	}

	db, err := engine.Open(cfg.Storage.Workdir, engine.Options{
		PoolSize:          cfg.Storage.PoolSize,
		ReplacerK:         cfg.Storage.ReplacerK,
		HeaderMaxDepth:    uint32(cfg.Index.HeaderMaxDepth),
		DirectoryMaxDepth: uint32(cfg.Index.DirectoryMaxDepth),
		BucketMaxSize:     uint32(cfg.Index.BucketMaxSize),
	})
	if err != nil {
		slog.Error("open database failed", "workdir", cfg.Storage.Workdir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rl, err := createReadlineInstance(cfg)
	if err != nil {
		slog.Error("init readline failed", "error", err)
		os.Exit(1)
	}
	defer util.CloseQuietly("readline", rl)

	fmt.Printf("%s interactive shell, type help for commands\n", cfg.AppName)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Error("read line failed", "error", err)
			break
		}
		if runCommand(db, strings.TrimSpace(line)) {
			break
		}
	}
}
