package db

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// verifyWorkers 是 verify 命令并发扫描的 goroutine 数
const verifyWorkers = 4

// CommandParser 负责解析一行命令并调用 Session 执行
type CommandParser struct {
	Session *Session
	Output  io.Writer // 输出目标
}

func NewCommandParser(session *Session, output io.Writer) *CommandParser {
	return &CommandParser{Session: session, Output: output}
}

var (
	reHelp   = regexp.MustCompile(`(?i)^help$`)
	reList   = regexp.MustCompile(`(?i)^list$`)
	reCreate = regexp.MustCompile(`(?i)^create\s+(\w+)(?:\s+(\d+))?$`)
	reDrop   = regexp.MustCompile(`(?i)^drop\s+(\w+)$`)
	reUse    = regexp.MustCompile(`(?i)^use\s+(\w+)$`)
	reInsert = regexp.MustCompile(`(?i)^insert\s+(-?\d+)\s+(-?\d+)$`)
	reGet    = regexp.MustCompile(`(?i)^get\s+(-?\d+)$`)
	reRemove = regexp.MustCompile(`(?i)^remove\s+(-?\d+)\s+(-?\d+)$`)
	reSize   = regexp.MustCompile(`(?i)^size$`)
	reFlush  = regexp.MustCompile(`(?i)^flush$`)
	reStats  = regexp.MustCompile(`(?i)^stats$`)
	reVerify = regexp.MustCompile(`(?i)^verify\s+(-?\d+)\s+(-?\d+)$`)
)

// ParseAndExecute 解析输入的命令并执行相应逻辑
func (p *CommandParser) ParseAndExecute(line string) error {
	line = strings.TrimSpace(line)
	line = strings.TrimSuffix(line, ";")
	line = strings.TrimSpace(line)

	switch {
	case reHelp.MatchString(line):
		p.printHelp()
		return nil

	case reList.MatchString(line):
		fmt.Fprintln(p.Output, "Indexes:")
		for _, name := range p.Session.Engine().ListIndexes() {
			fmt.Fprintln(p.Output, "- "+name)
		}
		return nil

	case reCreate.MatchString(line):
		m := reCreate.FindStringSubmatch(line)
		buckets := 0
		if m[2] != "" {
			n, err := strconv.Atoi(m[2])
			if err != nil {
				return fmt.Errorf("bucket count: %w", err)
			}
			buckets = n
		}
		if err := p.Session.Engine().CreateIndex(m[1], buckets); err != nil {
			return err
		}
		fmt.Fprintln(p.Output, "Index created.")
		return nil

	case reDrop.MatchString(line):
		m := reDrop.FindStringSubmatch(line)
		if m[1] == p.Session.CurrentIndex {
			return fmt.Errorf("cannot drop the index in use")
		}
		if err := p.Session.Engine().DropIndex(m[1]); err != nil {
			return err
		}
		fmt.Fprintln(p.Output, "Index dropped.")
		return nil

	case reUse.MatchString(line):
		m := reUse.FindStringSubmatch(line)
		if err := p.Session.Use(m[1]); err != nil {
			return err
		}
		fmt.Fprintf(p.Output, "Index changed to '%s'.\n", m[1])
		return nil

	case reInsert.MatchString(line):
		m := reInsert.FindStringSubmatch(line)
		key, value, err := parsePair(m[1], m[2])
		if err != nil {
			return err
		}
		ok, err := p.Session.Insert(key, value)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(p.Output, "Duplicate pair, 0 rows affected.")
			return nil
		}
		fmt.Fprintln(p.Output, "OK, 1 row affected.")
		return nil

	case reGet.MatchString(line):
		m := reGet.FindStringSubmatch(line)
		key, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return fmt.Errorf("key: %w", err)
		}
		vals, err := p.Session.Get(key)
		if err != nil {
			return err
		}
		if len(vals) == 0 {
			fmt.Fprintln(p.Output, "Empty set.")
			return nil
		}
		for _, v := range vals {
			fmt.Fprintf(p.Output, "[%d] %d\n", key, v)
		}
		fmt.Fprintf(p.Output, "(%d rows)\n", len(vals))
		return nil

	case reRemove.MatchString(line):
		m := reRemove.FindStringSubmatch(line)
		key, value, err := parsePair(m[1], m[2])
		if err != nil {
			return err
		}
		ok, err := p.Session.Remove(key, value)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(p.Output, "Not found, 0 rows affected.")
			return nil
		}
		fmt.Fprintln(p.Output, "OK, 1 row affected.")
		return nil

	case reSize.MatchString(line):
		entries, buckets, err := p.Session.Size()
		if err != nil {
			return err
		}
		fmt.Fprintf(p.Output, "%d entries in %d buckets\n", entries, buckets)
		return nil

	case reFlush.MatchString(line):
		if err := p.Session.Engine().Flush(); err != nil {
			return err
		}
		fmt.Fprintln(p.Output, "Flushed.")
		return nil

	case reStats.MatchString(line):
		s := p.Session.Engine().Stats()
		fmt.Fprintf(p.Output, "hits=%d misses=%d evictions=%d write_backs=%d\n",
			s.Hits, s.Misses, s.Evictions, s.WriteBacks)
		return nil

	case reVerify.MatchString(line):
		m := reVerify.FindStringSubmatch(line)
		from, to, err := parsePair(m[1], m[2])
		if err != nil {
			return err
		}
		if p.Session.CurrentIndex == "" {
			return ErrNoIndexSelected
		}
		bad, err := p.Session.Engine().Verify(context.Background(), p.Session.CurrentIndex, from, to, verifyWorkers)
		if err != nil {
			return err
		}
		if len(bad) == 0 {
			fmt.Fprintf(p.Output, "All %d keys OK.\n", to-from)
			return nil
		}
		fmt.Fprintf(p.Output, "%d keys missing, first %d\n", len(bad), bad[0])
		return nil

	default:
		return fmt.Errorf("syntax error or unknown command: %s", line)
	}
}

func parsePair(a, b string) (int64, int64, error) {
	x, err := strconv.ParseInt(a, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%q: %w", a, err)
	}
	y, err := strconv.ParseInt(b, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%q: %w", b, err)
	}
	return x, y, nil
}

func (p *CommandParser) printHelp() {
	fmt.Fprintln(p.Output, "--- probedb Help ---")
	fmt.Fprintln(p.Output, "1.  list")
	fmt.Fprintln(p.Output, "2.  create <name> [buckets]")
	fmt.Fprintln(p.Output, "3.  drop <name>")
	fmt.Fprintln(p.Output, "4.  use <name>")
	fmt.Fprintln(p.Output, "5.  insert <key> <value>")
	fmt.Fprintln(p.Output, "6.  get <key>")
	fmt.Fprintln(p.Output, "7.  remove <key> <value>")
	fmt.Fprintln(p.Output, "8.  size")
	fmt.Fprintln(p.Output, "9.  flush")
	fmt.Fprintln(p.Output, "10. stats")
	fmt.Fprintln(p.Output, "11. verify <from> <to>")
	fmt.Fprintln(p.Output, "12. quit")
}
