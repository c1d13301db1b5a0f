package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"probedb/pkg/db"
)

func main() {
	dbFile := flag.String("db", "data.db", "database file")
	metaFile := flag.String("meta", "meta.json", "catalog file")
	poolSize := flag.Int("pool", 64, "buffer pool size in pages")
	buckets := flag.Int("buckets", 1024, "default bucket count for new indexes")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "bad -log-level %q: %v\n", *logLevel, err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	engine, err := db.Open(db.Config{
		DBFile:         *dbFile,
		MetaFile:       *metaFile,
		PoolSize:       *poolSize,
		DefaultBuckets: *buckets,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("open database", "db", *dbFile, "err", err)
		os.Exit(1)
	}

	code := 0
	if err := run(engine.NewSession(), os.Stdin, os.Stdout); err != nil {
		logger.Error("session ended", "err", err)
		code = 1
	}
	if err := engine.Close(); err != nil {
		logger.Error("close database", "err", err)
		code = 1
	}
	os.Exit(code)
}

// run 读取一行命令就执行一行，直到 quit 或输入结束
func run(session *db.Session, in io.Reader, out io.Writer) error {
	parser := db.NewCommandParser(session, out)
	reader := bufio.NewReader(in)

	fmt.Fprint(out, "Welcome to probedb! Type 'help' for commands.\nprobedb> ")
	for {
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			if err == io.EOF {
				return nil
			}
			return err
		}

		line := strings.TrimSpace(input)
		if line == "" {
			fmt.Fprint(out, "probedb> ")
			continue
		}
		if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
			return nil
		}

		// --- 开始计时 ---
		start := time.Now()
		err = parser.ParseAndExecute(line)
		duration := time.Since(start)

		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "(%.4f sec)\n", duration.Seconds())
		}
		fmt.Fprint(out, "probedb> ")
	}
}
