package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/matthewjhunter/wayfinder"
)

// readNavlogFile loads navlogs from path, or stdin when path is "-".
func readNavlogFile(path string) ([]wayfinder.Navlog, error) {
	if path == "-" {
		return parseNavlogs(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open navlogs: %w", err)
	}
	defer f.Close()
	navlogs, err := parseNavlogs(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return navlogs, nil
}

// parseNavlogs accepts either a JSON array of navlogs or a stream of
// navlog objects, one per line.
func parseNavlogs(r io.Reader) ([]wayfinder.Navlog, error) {
	br := bufio.NewReader(r)
	first, err := firstNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var navlogs []wayfinder.Navlog
		if err := dec.Decode(&navlogs); err != nil {
			return nil, fmt.Errorf("decode navlog array: %w", err)
		}
		return navlogs, nil
	}

	var navlogs []wayfinder.Navlog
	for {
		var n wayfinder.Navlog
		err := dec.Decode(&n)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode navlog %d: %w", len(navlogs)+1, err)
		}
		navlogs = append(navlogs, n)
	}
	return navlogs, nil
}

func firstNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

// drainInbox reads every pending navlog file in dir. Files that fail to
// parse are renamed *.bad so they are not retried every cycle.
func drainInbox(dir string) ([]wayfinder.Navlog, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read inbox: %w", err)
	}

	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".json" && ext != ".jsonl") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var navlogs []wayfinder.Navlog
	var files []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		batch, err := readNavlogFile(path)
		if err != nil {
			log.Printf("wayfinder daemon: %v", err)
			if rerr := os.Rename(path, path+".bad"); rerr != nil {
				log.Printf("wayfinder daemon: %v", rerr)
			}
			continue
		}
		navlogs = append(navlogs, batch...)
		files = append(files, path)
	}
	return navlogs, files, nil
}

func markDone(files []string) {
	for _, path := range files {
		if err := os.Rename(path, path+".done"); err != nil {
			log.Printf("wayfinder daemon: %v", err)
		}
	}
}
